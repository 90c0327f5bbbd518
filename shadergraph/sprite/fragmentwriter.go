// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package sprite

import (
	"fmt"
	"strings"

	"github.com/gviegas/forge/shadergraph/graph"
)

// workingAttribute is an Attribute bound to the generated local or
// parameter name currently carrying its value.
type workingAttribute struct {
	Attribute
	name string
}

// FragmentWriter assembles one HLSL fragment forwards: it tracks
// working attributes, writes input/output parameters under generated
// unique names, emits calls with per-parameter cast or default-value
// expressions, and assigns outputs at the end.
type FragmentWriter struct {
	params  []string
	decls   fragBuilder
	body    fragBuilder
	working []workingAttribute

	signature graph.Signature
	nextIdx   int
}

func newFragmentWriter() *FragmentWriter {
	return &FragmentWriter{}
}

func (w *FragmentWriter) genName(prefix string, a Attribute) string {
	name := fmt.Sprintf("%s_%s_gen_%d", prefix, a.Semantic, w.nextIdx)
	w.nextIdx++
	return name
}

// WriteInputParameter declares a is available as an entry parameter
// and registers it as a working attribute under a freshly generated
// name.
func (w *FragmentWriter) WriteInputParameter(a Attribute) string {
	name := w.genName("in", a)
	w.params = append(w.params, fmt.Sprintf("%s %s : %s", a.Type, name, a.semanticAndIdx()))
	w.signature.Params = append(w.signature.Params, graph.Param{Name: a.semanticAndIdx(), Type: a.Type, Direction: graph.In})
	w.working = append(w.working, workingAttribute{a, name})
	return name
}

// WriteOutputParameter declares a as an "out" entry parameter.
func (w *FragmentWriter) WriteOutputParameter(a Attribute) string {
	name := w.genName("out", a)
	w.params = append(w.params, fmt.Sprintf("out %s %s : %s", a.Type, name, a.semanticAndIdx()))
	w.signature.Params = append(w.signature.Params, graph.Param{Name: a.semanticAndIdx(), Type: a.Type, Direction: graph.Out})

	if wa, ok := w.findWorking(a); ok {
		w.body.writelnf("\t%s = %s;", name, wa.name)
	} else {
		w.body.writelnf("\t%s = DefaultValue_%s();", name, a.Type)
	}
	return name
}

func (w *FragmentWriter) findWorking(a Attribute) (workingAttribute, bool) {
	for i := len(w.working) - 1; i >= 0; i-- {
		if w.working[i].Semantic == a.Semantic && w.working[i].Idx == a.Idx {
			return w.working[i], true
		}
	}
	return workingAttribute{}, false
}

// HasAttributeFor reports whether a has a live working value, and its
// current name if so.
func (w *FragmentWriter) HasAttributeFor(a Attribute) (string, bool) {
	wa, ok := w.findWorking(a)
	return wa.name, ok
}

// WriteCall emits a call to callName using sig to match inputs
// against working attributes (inserting a cast when types differ, a
// default-value expression when nothing provides the attribute) and
// to register sig's outputs as freshly produced working attributes.
func (w *FragmentWriter) WriteCall(callName string, sig graph.Signature) {
	w.body.writeString("\t" + callName + "(")

	first := true
	var outNames []string
	for _, p := range sig.Params {
		if !first {
			w.body.writeString(", ")
		}
		first = false

		a := paramToAttribute(p)
		if p.Direction == graph.Out {
			local := w.genName("local", a)
			w.decls.writelnf("%s %s;", p.Type, local)
			w.body.writeString(local)
			outNames = append(outNames, local)
			continue
		}

		if name, ok := w.HasAttributeFor(a); ok {
			wa, _ := w.findWorking(a)
			if wa.Type != p.Type {
				w.body.writeString(fmt.Sprintf("Cast_%s_to_%s(%s)", wa.Type, p.Type, name))
			} else {
				w.body.writeString(name)
			}
		} else {
			w.body.writeString(fmt.Sprintf("DefaultValue_%s()", p.Type))
		}
	}
	w.body.writeln(");")

	i := 0
	for _, p := range sig.Params {
		if p.Direction != graph.Out {
			continue
		}
		w.working = append(w.working, workingAttribute{paramToAttribute(p), outNames[i]})
		i++
	}
}

// complete assembles the function-level fragment source.
func (w *FragmentWriter) complete(name string) string {
	var b fragBuilder
	b.writelnf("void %s(%s) {", name, strings.Join(w.params, ", "))
	if w.decls.String() != "" {
		b.writeString(w.decls.String())
	}
	b.writeString(w.body.String())
	b.writeln("}")
	return b.String()
}

// fragBuilder is a thin strings.Builder wrapper with newline-friendly
// helpers, used throughout fragment emission.
type fragBuilder struct {
	b strings.Builder
}

func (f *fragBuilder) writeString(s string) { f.b.WriteString(s) }
func (f *fragBuilder) writeln(s string)      { f.b.WriteString(s); f.b.WriteByte('\n') }
func (f *fragBuilder) writelnf(format string, args ...any) {
	f.b.WriteString(fmt.Sprintf(format, args...))
	f.b.WriteByte('\n')
}
func (f *fragBuilder) String() string { return f.b.String() }
