package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var (
	programID  string
	sourcePath string
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Ask the node to deploy a program from a source file.",
	Run:   deployRun,
}

func init() {
	rootCmd.AddCommand(deployCmd)
	deployCmd.Flags().StringVarP(&programID, "id", "i", "", "Unique id for the program.")
	deployCmd.Flags().StringVarP(&sourcePath, "source", "s", "", "Path to the program source file.")
}

func deployRun(cmd *cobra.Command, args []string) {
	source, err := os.ReadFile(sourcePath)
	if err != nil {
		log.Fatal(err)
	}

	payload := struct {
		ProgramID string `json:"program_id"`
		Source    string `json:"source"`
	}{
		ProgramID: programID,
		Source:    string(source),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Fatal(err)
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/program/deploy", url), "application/json", bytes.NewBuffer(data))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(string(body))
}
