package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	pourTo     string
	pourAmount uint64
)

var pourCmd = &cobra.Command{
	Use:   "pour",
	Short: "Ask the node to transfer funds from the operator to an account.",
	Run:   pourRun,
}

func init() {
	rootCmd.AddCommand(pourCmd)
	pourCmd.Flags().StringVarP(&pourTo, "to", "t", "", "Account to receive the funds.")
	pourCmd.Flags().Uint64VarP(&pourAmount, "amount", "m", 0, "Amount to transfer.")
}

func pourRun(cmd *cobra.Command, args []string) {
	payload := struct {
		Account string `json:"account"`
		Amount  uint64 `json:"amount"`
	}{
		Account: pourTo,
		Amount:  pourAmount,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Fatal(err)
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/faucet/pour", url), "application/json", bytes.NewBuffer(data))
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
