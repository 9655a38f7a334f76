// Package rewrite lowers calls to builtin functions into native
// instructions.
//
// A Rewriter is built from a list of Builtin entries, each binding a
// Handler to a function name and optionally an import module and an
// expected signature. RewriteCalls scans the code of every defined
// function for calls to a matching function and hands each call site to
// its candidate handlers in registration order; the first handler that
// does not decline wins. Handlers edit the code through Site and report
// what they did with a Result. After the scan, callees whose usage
// dropped to zero are removed from the module.
//
// FindProducer walks code backward using the stack effects from the
// opcode registry to find the instruction that pushed a call argument, so
// handlers can capture or prepend values around the call.
package rewrite
