package database

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/solochain/solochain/foundation/blockchain/signature"
)

// Set of transaction types supported by the chain.
const (
	TxTypeDeploy  = "deploy"
	TxTypeExecute = "execute"
)

// Set of functions an execute transaction can run.
const (
	FnMint     = "mint"
	FnTransfer = "transfer"
)

// =============================================================================

// Record represents a private balance held by an account. The commitment is
// the public fingerprint of the record and is what the chain indexes.
type Record struct {
	OwnerID    AccountID `json:"owner"`      // Account who can spend this record.
	Balance    uint64    `json:"balance"`    // Amount of funds held by this record.
	Nonce      string    `json:"nonce"`      // Random value making the commitment unique.
	Commitment string    `json:"commitment"` // Hash of the owner, balance and nonce.
}

// NewRecord constructs a record for the specified owner and balance with a
// freshly generated nonce.
func NewRecord(ownerID AccountID, balance uint64) (Record, error) {
	nonce, err := randomHex()
	if err != nil {
		return Record{}, err
	}

	r := Record{
		OwnerID: ownerID,
		Balance: balance,
		Nonce:   nonce,
	}
	r.Commitment = Commitment(r.OwnerID, r.Balance, r.Nonce)

	return r, nil
}

// Commitment computes the commitment for the specified record fields. The
// same fields always produce the same commitment.
func Commitment(ownerID AccountID, balance uint64, nonce string) string {
	return signature.HashBytes(string(ownerID), fmt.Sprintf("%d", balance), nonce)
}

// SerialNumber computes the serial number revealed when the specified account
// spends the record with the specified commitment. Spending the same record
// twice always reveals the same serial number.
func SerialNumber(commitment string, spenderID AccountID) string {
	return signature.HashBytes(commitment, string(spenderID))
}

// =============================================================================

// Output represents a record created by a transaction.
type Output struct {
	Record
	OutputID string `json:"output_id"` // Hash of the commitment.
}

// NewOutput constructs an output wrapping the specified record.
func NewOutput(record Record) Output {
	return Output{
		Record:   record,
		OutputID: signature.HashBytes(record.Commitment),
	}
}

// Input represents a record consumed by a transaction. Only derived
// identifiers are revealed, never the record itself.
type Input struct {
	SerialNumber string `json:"serial_number"` // Hash of the consumed commitment and the spender.
	InputID      string `json:"input_id"`      // Hash of the serial number.
	Tag          string `json:"tag"`           // Hash of the serial number and the transition key.
}

// NewInput constructs an input consuming the specified record on behalf of
// its owner, under the specified transition key.
func NewInput(record Record, tpk string) Input {
	serial := SerialNumber(record.Commitment, record.OwnerID)

	return Input{
		SerialNumber: serial,
		InputID:      signature.HashBytes(serial),
		Tag:          signature.HashBytes(serial, tpk),
	}
}

// =============================================================================

// Program represents source code deployed to the chain.
type Program struct {
	ProgramID string `json:"program_id"` // Unique name of the program.
	Source    string `json:"source"`     // The program source text.
}

// =============================================================================

// Tx is the transactional information submitted for inclusion into a block.
type Tx struct {
	ChainID   uint16   `json:"chain_id"`          // Chain id this transaction is bound to.
	Type      string   `json:"type"`              // Either deploy or execute.
	ProgramID string   `json:"program_id"`        // Program this transaction deploys or executes.
	Function  string   `json:"function"`          // Function being executed, empty for deployments.
	Inputs    []Input  `json:"inputs"`            // Records consumed by this transaction.
	Outputs   []Output `json:"outputs"`           // Records created by this transaction.
	Fee       int64    `json:"fee"`               // Declared fee, negative values mark system transactions.
	TPK       string   `json:"tpk"`               // Ephemeral transition public key, unique per transaction.
	TCM       string   `json:"tcm"`               // Transition commitment, hash of the tpk.
	Program   *Program `json:"program,omitempty"` // Source being deployed, nil for executions.
}

// NewExecuteTx constructs an execute transaction consuming the specified
// records and producing the specified outputs.
func NewExecuteTx(chainID uint16, programID string, function string, consumed []Record, created []Record, fee int64) (Tx, error) {
	tpk, err := randomHex()
	if err != nil {
		return Tx{}, err
	}

	inputs := make([]Input, len(consumed))
	for i, record := range consumed {
		inputs[i] = NewInput(record, tpk)
	}

	outputs := make([]Output, len(created))
	for i, record := range created {
		outputs[i] = NewOutput(record)
	}

	tx := Tx{
		ChainID:   chainID,
		Type:      TxTypeExecute,
		ProgramID: programID,
		Function:  function,
		Inputs:    inputs,
		Outputs:   outputs,
		Fee:       fee,
		TPK:       tpk,
		TCM:       signature.HashBytes(tpk),
	}

	return tx, nil
}

// NewDeployTx constructs a deploy transaction carrying the specified program,
// funded by the consumed record with any change returned to the owner.
func NewDeployTx(chainID uint16, program Program, consumed []Record, created []Record, fee int64) (Tx, error) {
	tx, err := NewExecuteTx(chainID, program.ProgramID, "", consumed, created, fee)
	if err != nil {
		return Tx{}, err
	}

	tx.Type = TxTypeDeploy
	tx.Function = ""
	tx.Program = &program

	return tx, nil
}

// NewMintTx constructs the minting transaction placed in the first block of
// the chain. It consumes nothing and creates one record per starting balance.
func NewMintTx(chainID uint16, balances map[string]uint64) (Tx, error) {
	tpk, err := randomHex()
	if err != nil {
		return Tx{}, err
	}

	// Mint the starting records in account order so the genesis block is
	// reproducible from the same genesis file.
	accounts := make([]string, 0, len(balances))
	for account := range balances {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)

	outputs := make([]Output, 0, len(accounts))
	for _, account := range accounts {
		accountID, err := ToAccountID(account)
		if err != nil {
			return Tx{}, err
		}

		record, err := NewRecord(accountID, balances[account])
		if err != nil {
			return Tx{}, err
		}
		outputs = append(outputs, NewOutput(record))
	}

	tx := Tx{
		ChainID:   chainID,
		Type:      TxTypeExecute,
		ProgramID: "credits",
		Function:  FnMint,
		Outputs:   outputs,
		Fee:       -1,
		TPK:       tpk,
		TCM:       signature.HashBytes(tpk),
	}

	return tx, nil
}

// ID returns the unique id for the transaction. The proof is not part of
// the id.
func (tx Tx) ID() string {
	return signature.Hash(tx)
}

// Sign uses the specified private key to produce the proof of the
// transaction.
func (tx Tx) Sign(privateKey *ecdsa.PrivateKey) (SignedTx, error) {
	v, r, s, err := signature.Sign(tx, privateKey)
	if err != nil {
		return SignedTx{}, err
	}

	signedTx := SignedTx{
		Tx: tx,
		V:  v,
		R:  r,
		S:  s,
	}

	return signedTx, nil
}

// =============================================================================

// SignedTx is a transaction carrying its proof. This is how clients provide
// transactions for inclusion into the chain.
type SignedTx struct {
	Tx
	V *big.Int `json:"v"` // Recovery identifier, either 29 or 30 with soloID.
	R *big.Int `json:"r"` // First coordinate of the ECDSA signature.
	S *big.Int `json:"s"` // Second coordinate of the ECDSA signature.
}

// Validate verifies the transaction has a proper proof that conforms to our
// standards and that every derived identifier is consistent with the data it
// claims to be derived from.
func (tx SignedTx) Validate(chainID uint16) error {
	if tx.ChainID != chainID {
		return fmt.Errorf("invalid chain id, got %d, exp %d", tx.ChainID, chainID)
	}

	if tx.Type != TxTypeDeploy && tx.Type != TxTypeExecute {
		return fmt.Errorf("unknown transaction type %q", tx.Type)
	}

	if tx.Type == TxTypeDeploy && (tx.Program == nil || tx.Program.ProgramID != tx.ProgramID) {
		return errors.New("deployment is missing its program")
	}

	if err := signature.VerifySignature(tx.V, tx.R, tx.S); err != nil {
		return err
	}

	if tx.TCM != signature.HashBytes(tx.TPK) {
		return errors.New("transition commitment does not match transition key")
	}

	for _, out := range tx.Outputs {
		if !out.OwnerID.IsAccountID() {
			return errors.New("invalid account for record owner")
		}
		if out.Commitment != Commitment(out.OwnerID, out.Balance, out.Nonce) {
			return errors.New("record commitment does not match record data")
		}
		if out.OutputID != signature.HashBytes(out.Commitment) {
			return errors.New("output id does not match commitment")
		}
	}

	for _, in := range tx.Inputs {
		if in.InputID != signature.HashBytes(in.SerialNumber) {
			return errors.New("input id does not match serial number")
		}
		if in.Tag != signature.HashBytes(in.SerialNumber, tx.TPK) {
			return errors.New("input tag does not match serial number")
		}
	}

	return nil
}

// FromAccount extracts the account id that signed the transaction.
func (tx SignedTx) FromAccount() (AccountID, error) {
	address, err := signature.FromAddress(tx.Tx, tx.V, tx.R, tx.S)
	return AccountID(address), err
}

// SignatureString returns the proof as a string.
func (tx SignedTx) SignatureString() string {
	return signature.SignatureString(tx.V, tx.R, tx.S)
}

// String implements the fmt.Stringer interface for logging.
func (tx SignedTx) String() string {
	return fmt.Sprintf("%s:%s", tx.Type, tx.ID()[:10])
}

// =============================================================================

// BlockTx represents the transaction as it's recorded inside a block. This
// includes the time the node first saw the transaction.
type BlockTx struct {
	SignedTx
	TimeStamp uint64 `json:"timestamp"` // The time the transaction was received.
}

// NewBlockTx constructs a new block transaction.
func NewBlockTx(signedTx SignedTx) BlockTx {
	return BlockTx{
		SignedTx:  signedTx,
		TimeStamp: uint64(time.Now().UTC().Unix()),
	}
}

// Size returns the number of bytes the transaction occupies on the wire.
// The declared fee must cover this size.
func (tx BlockTx) Size() (int64, error) {
	data, err := json.Marshal(tx.SignedTx)
	if err != nil {
		return 0, err
	}

	return int64(len(data)), nil
}

// Hash implements the merkle Hashable interface for providing a hash
// of a block transaction.
func (tx BlockTx) Hash() ([]byte, error) {
	str := signature.Hash(tx)
	return hex.DecodeString(str[2:])
}

// Equals implements the merkle Hashable interface for providing an equality
// check between two block transactions. If the ids and proofs are the same,
// the two transactions are the same.
func (tx BlockTx) Equals(otherTx BlockTx) bool {
	txSig := signature.ToSignatureBytes(tx.V, tx.R, tx.S)
	otherTxSig := signature.ToSignatureBytes(otherTx.V, otherTx.R, otherTx.S)

	return tx.Tx.ID() == otherTx.Tx.ID() && bytes.Equal(txSig, otherTxSig)
}

// =============================================================================

// randomHex generates 32 bytes of randomness for nonces and transition keys.
func randomHex() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hexutil.Encode(b), nil
}
