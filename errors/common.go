package errors

import "fmt"

func InvalidParamsErr(err error) error {
	return E(Invalid, "invalid params", err)
}

func EmptyParamErr(field string) error {
	ve := ValidationErrs()
	ve.Add(field, "cannot be empty")
	return E(Invalid, "validation failed", ve.Err())
}

// NotFoundErr returns a formatted error for a missing entity
func NotFoundErr(entity, id string) error {
	return E(NotFound, fmt.Sprintf("%s %s not found", entity, id), nil)
}

// ConnectionExhaustedErr is returned once every reconnection attempt failed
func ConnectionExhaustedErr(attempts int, err error) error {
	return E(Unavailable, fmt.Sprintf("ledger connection failed after %d attempts", attempts), err)
}

// RPCErr returns a formatted error for a failed ledger request
func RPCErr(command, code, message string) error {
	return E(Unavailable, fmt.Sprintf("%s failed: %s %s", command, code, message), nil)
}
