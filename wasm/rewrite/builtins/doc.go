// Package builtins provides the handlers that lower compiler builtins and
// libc placeholders to WebAssembly instructions: atomics, float math,
// NaN and infinity checks, bulk memory, alloca and table operations.
package builtins
