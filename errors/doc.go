// Package errors provides structured error types for the codec and the
// rewrite engine.
//
// Errors are categorized by Phase (where the error occurred) and Kind
// (error category). Three kinds mirror the failure classes of the codec:
//
//	KindReference     an instruction references an entity absent from the module
//	KindOutOfBounds   a decoded index is outside its collection
//	KindInvalidShape  a fixed-shape operand holds an unexpected value
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindInvalidShape).
//		Path("func[3]", "instr[12]").
//		Detail("reserved memory index byte 0x%02x", b).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.OutOfBounds(errors.PhaseDecode, path, 10, 5)
//	err := errors.Reference(errors.PhaseEncode, path, "function")
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
