package consensus

import (
	"errors"
	"fmt"
)

// ErrEmptyMempool is returned from ProposeNextBlock when there are no
// transactions staged to build a block from.
var ErrEmptyMempool = errors.New("no transactions in mempool")

// ErrDuplicate is returned when a transaction carries an identifier the
// chain or the mempool has already seen.
var ErrDuplicate = errors.New("transaction is a duplicate or conflicts")

// Set of rules a candidate block is validated against, in the order they
// are applied.
const (
	RuleLinkage      = "linkage"
	RuleSequencing   = "sequencing"
	RuleTimestamp    = "timestamp"
	RuleUniqueness   = "uniqueness"
	RuleHeader       = "header"
	RuleTargets      = "targets"
	RuleSignature    = "signature"
	RuleTransactions = "transactions"
)

// ValidationError names the rule a candidate block violated.
type ValidationError struct {
	Rule string
	Err  error
}

// NewValidationError constructs a validation error for the specified rule.
func NewValidationError(rule string, err error) error {
	return &ValidationError{
		Rule: rule,
		Err:  err,
	}
}

// Error implements the error interface.
func (ve *ValidationError) Error() string {
	return fmt.Sprintf("block failed the %s rule: %s", ve.Rule, ve.Err)
}

// Unwrap returns the underlying cause.
func (ve *ValidationError) Unwrap() error {
	return ve.Err
}

// IsValidationError checks whether the error chain contains a
// ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// GetValidationError returns a copy of the ValidationError in the chain.
func GetValidationError(err error) *ValidationError {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return nil
	}

	return ve
}
