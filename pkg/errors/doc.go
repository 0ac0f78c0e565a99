// Package errors provides the structured error type shared by the class-file
// loader and the interpreter.
//
// Errors carry a Phase (where the error happened) and a Kind (what went
// wrong), plus the byte offset or program counter involved:
//
//	err := errors.New(errors.PhaseLoad, errors.KindMissingField).
//		Offset(cur.Offset()).
//		Detail("reading major version").
//		Build()
//
// Sentinels such as ErrMissingField have no phase and match any error of the
// same kind through the standard errors.Is.
package errors
