package toolchain

import (
	"bytes"
	"fmt"
	"strconv"
)

// VariableName derives a C identifier from a file name the way `xxd -i` does:
// characters other than ASCII letters and digits become '_', and a leading
// digit is prefixed with "__".
func VariableName(file string) string {
	var b bytes.Buffer
	if len(file) > 0 && file[0] >= '0' && file[0] <= '9' {
		b.WriteString("__")
	}
	for i := 0; i < len(file); i++ {
		c := file[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// CArray renders data as a C array declaration plus a length variable,
// byte-compatible with `xxd -c <columns> -i`. Columns <= 0 means one line.
func CArray(name string, data []byte, columns int) []byte {
	if columns <= 0 {
		columns = len(data)
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "unsigned char %s[] = {\n", name)
	for i, c := range data {
		if i%columns == 0 {
			b.WriteString("  ")
		}
		fmt.Fprintf(&b, "0x%02x", c)
		switch {
		case i == len(data)-1:
			b.WriteByte('\n')
		case (i+1)%columns == 0:
			b.WriteString(",\n")
		default:
			b.WriteString(", ")
		}
	}
	b.WriteString("};\n")
	b.WriteString("unsigned int " + name + "_len = " + strconv.Itoa(len(data)) + ";\n")
	return b.Bytes()
}
