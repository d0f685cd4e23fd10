package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"
)

type latest struct {
	Height uint64 `json:"height"`
}

type stateRoot struct {
	StateRoot string `json:"state_root"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current chain status of the node.",
	Run:   statusRun,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusRun(cmd *cobra.Command, args []string) {
	var l latest
	if err := get(fmt.Sprintf("%s/v1/latest/height", url), &l); err != nil {
		log.Fatal(err)
	}

	var sr stateRoot
	if err := get(fmt.Sprintf("%s/v1/latest/stateroot", url), &sr); err != nil {
		log.Fatal(err)
	}

	fmt.Println("Height:   ", l.Height)
	fmt.Println("StateRoot:", sr.StateRoot)
}

// get performs a GET call against the node and decodes the response.
func get(url string, v any) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return json.NewDecoder(resp.Body).Decode(v)
}
