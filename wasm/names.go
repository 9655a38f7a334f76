package wasm

import (
	"bytes"

	"github.com/raweden/wasm-ylinker-sub002/wasm/internal/binary"
)

// Name section subsection ids.
const (
	nameModule    byte = 0
	nameFunctions byte = 1
	nameLocals    byte = 2
	nameLabels    byte = 3
)

type nameSubsection struct {
	id   byte
	data []byte
}

func splitNameSection(data []byte) ([]nameSubsection, bool) {
	r := binary.NewReader(data)
	var subs []nameSubsection
	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, false
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, false
		}
		payload, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, false
		}
		subs = append(subs, nameSubsection{id: id, data: payload})
	}
	return subs, true
}

// readFunctionNames assigns Function.Name from the function name map.
// A malformed name section is ignored; it is debug info only.
func readFunctionNames(m *Module, data []byte) {
	subs, ok := splitNameSection(data)
	if !ok {
		return
	}
	for _, sub := range subs {
		if sub.id != nameFunctions {
			continue
		}
		r := binary.NewReader(sub.data)
		n, err := r.ReadU32()
		if err != nil {
			return
		}
		for i := uint32(0); i < n; i++ {
			idx, err := r.ReadU32()
			if err != nil {
				return
			}
			name, err := r.ReadName()
			if err != nil {
				return
			}
			if int(idx) < len(m.Functions) {
				m.Functions[idx].Name = name
			}
		}
	}
}

// encodeNameSection rebuilds the function name map from Function.Name and
// renumbers the per-function maps (locals, labels) to the current function
// index space. Entries of removed functions are dropped; other
// subsections are copied unchanged. The decoded bytes are returned as is
// while no function was added, removed or renamed.
func (m *Module) encodeNameSection(data []byte, ix *indexSpace) []byte {
	if m.namesUnchanged() {
		return data
	}
	subs, ok := splitNameSection(data)
	if !ok {
		return data
	}

	w := binary.NewWriter()
	wroteFuncs := false
	emitFuncs := func() {
		wroteFuncs = true
		payload := m.functionNameMap(ix)
		if payload == nil {
			return
		}
		w.Byte(nameFunctions)
		w.WriteU32(uint32(len(payload)))
		w.WriteBytes(payload)
	}

	for _, sub := range subs {
		if !wroteFuncs && sub.id > nameFunctions {
			emitFuncs()
		}
		payload := sub.data
		switch sub.id {
		case nameFunctions:
			emitFuncs()
			continue
		case nameLocals, nameLabels:
			if remapped, ok := m.remapIndirectNames(sub.data, ix); ok {
				payload = remapped
			}
		}
		w.Byte(sub.id)
		w.WriteU32(uint32(len(payload)))
		w.WriteBytes(payload)
	}
	if !wroteFuncs {
		emitFuncs()
	}

	out := w.Bytes()
	if bytes.Equal(out, data) {
		return data
	}
	return out
}

func (m *Module) functionNameMap(ix *indexSpace) []byte {
	var n uint32
	body := binary.NewWriter()
	for i, fn := range m.Functions {
		if fn.Name == "" || ix.funcs[fn] != i {
			continue
		}
		body.WriteU32(uint32(i))
		body.WriteName(fn.Name)
		n++
	}
	if n == 0 {
		return nil
	}
	w := binary.NewWriter()
	w.WriteU32(n)
	w.WriteBytes(body.Bytes())
	return w.Bytes()
}

// remapIndirectNames rewrites the outer function indices of an indirect
// name map using the index space the section was decoded against. A
// module built in memory keeps its indices.
func (m *Module) remapIndirectNames(data []byte, ix *indexSpace) ([]byte, bool) {
	r := binary.NewReader(data)
	n, err := r.ReadU32()
	if err != nil {
		return nil, false
	}
	var kept uint32
	body := binary.NewWriter()
	for i := uint32(0); i < n; i++ {
		old, err := r.ReadU32()
		if err != nil {
			return nil, false
		}
		start := r.Position()
		inner, err := r.ReadU32()
		if err != nil {
			return nil, false
		}
		for k := uint32(0); k < inner; k++ {
			if _, err := r.ReadU32(); err != nil {
				return nil, false
			}
			if _, err := r.ReadName(); err != nil {
				return nil, false
			}
		}
		idx := int(old)
		if m.decoded != nil {
			if idx >= len(m.decoded.funcs) {
				continue
			}
			var ok bool
			if idx, ok = ix.funcs[m.decoded.funcs[old]]; !ok {
				continue
			}
		} else if idx >= len(m.Functions) {
			continue
		}
		body.WriteU32(uint32(idx))
		body.WriteBytes(data[start:r.Position()])
		kept++
	}
	w := binary.NewWriter()
	w.WriteU32(kept)
	w.WriteBytes(body.Bytes())
	return w.Bytes(), true
}
