package log

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

type pcCarrier interface {
	PC() uintptr
}

// errorFields describes err for an error-level record.
func (s *slogLogger) errorFields(err error) []any {
	surface, root := errorTypes(err)
	kv := []any{
		"err", err,
		"error_type", surface,
		"cause_type", root,
	}
	if chain := errorMessages(err); len(chain) > 0 {
		kv = append(kv, "error_chain", chain)
	}
	if s.errorLinks {
		kv = append(kv, "error_links", errorLinks(err, s.maxErrorLinks))
	}
	return kv
}

// errorMessages lists the distinct messages down the Unwrap chain, then the
// messages of a joined error's members.
func errorMessages(err error) []string {
	var out []string
	last := ""
	add := func(msg string) {
		if msg != last {
			out = append(out, msg)
			last = msg
		}
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		add(e.Error())
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range j.Unwrap() {
			add(e.Error())
		}
	}
	return out
}

// errorLinks locates where each layer of err was created. The outermost
// layer is always present; inner layers only when their origin is known.
func errorLinks(err error, max int) []map[string]any {
	var links []map[string]any
	for depth, e := 0, err; e != nil && (max <= 0 || depth < max); depth, e = depth+1, errors.Unwrap(e) {
		link := map[string]any{"msg": e.Error()}
		fr, ok := errorOrigin(e)
		if ok {
			link["func"], link["file"], link["line"] = fr.Function, fr.File, fr.Line
		}
		if ok || depth == 0 {
			links = append(links, link)
		}
	}
	return links
}

func errorOrigin(e error) (runtime.Frame, bool) {
	switch v := e.(type) {
	case pcCarrier:
		if pc := v.PC(); pc != 0 {
			fr, _ := runtime.CallersFrames([]uintptr{pc}).Next()
			return fr, true
		}
	case stackCarrier:
		frames := runtime.CallersFrames(v.StackPCs())
		for {
			fr, more := frames.Next()
			if fr.Function != "" && !strings.HasPrefix(fr.Function, "runtime.") && !internalFrame(fr.Function, true) {
				return fr, true
			}
			if !more {
				break
			}
		}
	}
	return runtime.Frame{}, false
}

// errorTypes returns the first type in the chain that is not a plain wrapper,
// and the type of the innermost error.
func errorTypes(err error) (surface, root string) {
	if err == nil {
		return "", ""
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		root = fmt.Sprintf("%T", e)
		if surface == "" && !isWrapper(e) {
			surface = root
		}
	}
	if surface == "" {
		surface = fmt.Sprintf("%T", err)
	}
	return surface, root
}

func isWrapper(e error) bool {
	t := reflect.TypeOf(e)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	pkg := t.PkgPath()
	return strings.HasSuffix(pkg, "/internal/xerrors") || (pkg == "fmt" && t.Name() == "wrapError")
}
