package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

type mempoolTx struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	ProgramID string `json:"program_id"`
	Function  string `json:"function"`
	Fee       int64  `json:"fee"`
}

var mempoolCmd = &cobra.Command{
	Use:   "mempool",
	Short: "Print the uncommitted transactions staged on the node.",
	Run:   mempoolRun,
}

func init() {
	rootCmd.AddCommand(mempoolCmd)
}

func mempoolRun(cmd *cobra.Command, args []string) {
	var trans []mempoolTx
	if err := get(fmt.Sprintf("%s/v1/mempool", url), &trans); err != nil {
		log.Fatal(err)
	}

	if len(trans) == 0 {
		fmt.Println("mempool is empty")
		return
	}

	for _, tx := range trans {
		fmt.Printf("ID: %s  Type: %s  Program: %s  Function: %s  Fee: %d\n",
			tx.ID, tx.Type, tx.ProgramID, tx.Function, tx.Fee)
	}
}
