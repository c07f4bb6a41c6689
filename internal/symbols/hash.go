package symbols

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// SignatureHash hashes the externally visible shape of a module partition:
// every declaration except parameters and procedure locals. Body-only edits
// leave it unchanged, so other modules need no rebinding.
func SignatureHash(decls []*Declaration) uint64 {
	h := xxhash.New()
	for _, d := range decls {
		if !visibleOutsideBody(d, decls) {
			continue
		}
		h.WriteString(strconv.Itoa(d.ID.Ordinal))
		h.WriteString("\x00")
		h.WriteString(d.Kind.String())
		h.WriteString("\x00")
		h.WriteString(strings.ToLower(d.Name))
		h.WriteString("\x00")
		h.WriteString(d.Accessibility.String())
		h.WriteString("\x00")
		h.WriteString(strings.ToLower(d.AsType))
		if d.IsArray {
			h.WriteString("()")
		}
		h.WriteString("\n")
	}
	return h.Sum64()
}

func visibleOutsideBody(d *Declaration, decls []*Declaration) bool {
	if d.Kind == Parameter {
		return false
	}
	if d.ParentID.IsZero() || d.ParentID.Module != d.ID.Module {
		return true
	}
	if p := d.ParentID.Ordinal; p >= 0 && p < len(decls) {
		return !decls[p].Kind.IsMember()
	}
	return true
}
