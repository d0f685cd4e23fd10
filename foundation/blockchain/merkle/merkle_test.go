package merkle_test

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/solochain/solochain/foundation/blockchain/database"
	"github.com/solochain/solochain/foundation/blockchain/merkle"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// =============================================================================

func Test_Tree(t *testing.T) {
	t.Log("Given the need to build a merkle tree over block transactions.")
	{
		t.Logf("\tTest 0:\tWhen building a tree from four transactions.")
		{
			trans := newTrans(t, 4)

			tree, err := merkle.NewTree(trans)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to build the tree: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to build the tree.", success)

			if !strings.HasPrefix(tree.RootHex(), "0x") || len(tree.MerkleRoot) == 0 {
				t.Fatalf("\t%s\tTest 0:\tShould produce a hex encoded root, got %q.", failed, tree.RootHex())
			}
			t.Logf("\t%s\tTest 0:\tShould produce a hex encoded root.", success)

			if err := tree.Verify(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould verify the whole tree: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould verify the whole tree.", success)

			for _, tx := range trans {
				if err := tree.VerifyData(tx); err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould verify every transaction: %v", failed, err)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould verify every transaction.", success)

			values := tree.Values()
			if len(values) != len(trans) {
				t.Fatalf("\t%s\tTest 0:\tShould return every transaction, got %d.", failed, len(values))
			}
			for i := range values {
				if !values[i].Equals(trans[i]) {
					t.Fatalf("\t%s\tTest 0:\tShould return the transactions in order.", failed)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould return the transactions in order.", success)
		}

		t.Logf("\tTest 1:\tWhen building a tree from an odd number of transactions.")
		{
			trans := newTrans(t, 3)

			tree, err := merkle.NewTree(trans)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to build the tree: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould be able to build the tree.", success)

			if err := tree.Verify(); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould verify the whole tree: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould verify the whole tree.", success)

			// The duplicated leaf never shows up in the values.
			if values := tree.Values(); len(values) != 3 {
				t.Fatalf("\t%s\tTest 1:\tShould return three transactions, got %d.", failed, len(values))
			}
			t.Logf("\t%s\tTest 1:\tShould return three transactions.", success)
		}

		t.Logf("\tTest 2:\tWhen building a tree from a single transaction.")
		{
			trans := newTrans(t, 1)

			tree, err := merkle.NewTree(trans)
			if err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to build the tree: %v", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould be able to build the tree.", success)

			if values := tree.Values(); len(values) != 1 {
				t.Fatalf("\t%s\tTest 2:\tShould return one transaction, got %d.", failed, len(values))
			}
			t.Logf("\t%s\tTest 2:\tShould return one transaction.", success)
		}

		t.Logf("\tTest 3:\tWhen building a tree with no transactions.")
		{
			if _, err := merkle.NewTree([]database.BlockTx{}); err == nil {
				t.Fatalf("\t%s\tTest 3:\tShould refuse to build an empty tree.", failed)
			}
			t.Logf("\t%s\tTest 3:\tShould refuse to build an empty tree.", success)
		}
	}
}

func Test_Proof(t *testing.T) {
	t.Log("Given the need to prove a transaction is in the tree.")
	{
		t.Logf("\tTest 0:\tWhen walking the proof path for every transaction.")
		{
			trans := newTrans(t, 5)

			tree, err := merkle.NewTree(trans)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to build the tree: %v", failed, err)
			}

			for _, tx := range trans {
				proof, order, err := tree.Proof(tx)
				if err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould be able to produce a proof: %v", failed, err)
				}

				hash, err := tx.Hash()
				if err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould be able to hash the transaction: %v", failed, err)
				}

				// Fold the proof into the leaf hash, order 0 concats the
				// proof first, order 1 concats it second.
				for i := range proof {
					h := sha256.New()
					if order[i] == 0 {
						h.Write(append(proof[i], hash...))
					} else {
						h.Write(append(hash, proof[i]...))
					}
					hash = h.Sum(nil)
				}

				if !bytes.Equal(hash, tree.MerkleRoot) {
					t.Fatalf("\t%s\tTest 0:\tShould recompute the root from the proof.", failed)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould recompute the root from every proof.", success)
		}

		t.Logf("\tTest 1:\tWhen asking for a transaction the tree never saw.")
		{
			tree, err := merkle.NewTree(newTrans(t, 2))
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to build the tree: %v", failed, err)
			}

			absent := newTrans(t, 1)[0]

			if _, _, err := tree.Proof(absent); err == nil {
				t.Fatalf("\t%s\tTest 1:\tShould refuse to prove an absent transaction.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould refuse to prove an absent transaction.", success)

			if err := tree.VerifyData(absent); err == nil {
				t.Fatalf("\t%s\tTest 1:\tShould refuse to verify an absent transaction.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould refuse to verify an absent transaction.", success)
		}
	}
}

func Test_Rebuild(t *testing.T) {
	t.Log("Given the need to rebuild a tree from its own leaves.")
	{
		t.Logf("\tTest 0:\tWhen rebuilding a tree of four transactions.")
		{
			tree, err := merkle.NewTree(newTrans(t, 4))
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to build the tree: %v", failed, err)
			}

			root := tree.RootHex()

			if err := tree.Rebuild(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to rebuild the tree: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to rebuild the tree.", success)

			if tree.RootHex() != root {
				t.Fatalf("\t%s\tTest 0:\tShould keep the same root, got %s, exp %s.", failed, tree.RootHex(), root)
			}
			t.Logf("\t%s\tTest 0:\tShould keep the same root.", success)
		}
	}
}

func Test_HashStrategy(t *testing.T) {
	t.Log("Given the need to build a tree with a different hash strategy.")
	{
		t.Logf("\tTest 0:\tWhen building the same transactions with sha512.")
		{
			trans := newTrans(t, 4)

			sha256Tree, err := merkle.NewTree(trans)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to build the sha256 tree: %v", failed, err)
			}

			sha512Tree, err := merkle.NewTree(trans, merkle.WithHashStrategy[database.BlockTx](sha512.New))
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to build the sha512 tree: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to build the sha512 tree.", success)

			if err := sha512Tree.Verify(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould verify the sha512 tree: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould verify the sha512 tree.", success)

			if sha512Tree.RootHex() == sha256Tree.RootHex() {
				t.Fatalf("\t%s\tTest 0:\tShould produce a different root per strategy.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould produce a different root per strategy.", success)
		}
	}
}

// =============================================================================

// newTrans builds the specified number of signed block transactions, each
// spending a fresh record back to its owner.
func newTrans(t *testing.T, count int) []database.BlockTx {
	pk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate a private key: %v", failed, err)
	}
	owner := database.PublicKeyToAccountID(pk.PublicKey)

	trans := make([]database.BlockTx, count)
	for i := range trans {
		spend, err := database.NewRecord(owner, 1_000)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create a record: %v", failed, err)
		}

		change, err := database.NewRecord(owner, 900)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create a record: %v", failed, err)
		}

		tx, err := database.NewExecuteTx(1, "credits", database.FnTransfer, []database.Record{spend}, []database.Record{change}, 100)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create a transaction: %v", failed, err)
		}

		signedTx, err := tx.Sign(pk)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to sign the transaction: %v", failed, err)
		}

		trans[i] = database.NewBlockTx(signedTx)
	}

	return trans
}
