package archive

// UserInputError marks failures caused by the caller's inputs (missing
// files, pathological filesystem layouts) as distinct from policy
// violations and plain I/O errors, so the CLI boundary can pick an exit
// code.
type UserInputError struct {
	Msg string
}

func (e *UserInputError) Error() string { return e.Msg }
