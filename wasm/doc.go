// Package wasm decodes WebAssembly binaries into a mutable object graph
// and encodes the graph back to a binary.
//
// Instructions reference module entities (functions, globals, tables,
// memories, tags, types, segments and locals) by pointer. Positional
// indices exist only in the binary: the decoder resolves them into
// pointers and the encoder computes them again from the current
// collections. Passes can therefore append locals, add imports or
// remove functions without renumbering operands. An operand whose
// entity is no longer in the module fails to encode with a reference
// error.
//
// # Parsing and encoding
//
//	data, _ := os.ReadFile("module.wasm")
//	m, err := wasm.ParseModule(data, wasm.DecodeOptions{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, err := m.Encode(wasm.EncodeOptions{})
//
// Sections keep their decoded payload. Functions that were not modified
// (Dirty is false) are written from their original body bytes while the
// module's index spaces are unchanged, so an untouched module encodes to
// the same bytes it was decoded from.
//
// # Relocation
//
// Immediates marked Reloc (i32.const, i64.const, memory offsets,
// function and global indices) are padded to a fixed width when encoding
// with EncodeOptions.Relocatable, and the offset of each padded field is
// stored in Instruction.ROff for a linker to patch. DecodeOptions.Reloc
// recognizes padded immediates in relocatable input.
//
// # Opcodes
//
// Lookup returns the registry entry of an opcode: its name, class,
// immediate layout, memory traits and stack effect. The registry covers
// the MVP instruction set, sign extension, saturating truncation,
// reference types, bulk memory, tail calls, legacy exception handling,
// threads and fixed-width SIMD.
package wasm
