package pickup

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// CodeLength is the number of characters in a pickup code.
const CodeLength = 6

// CodeAlphabet holds the characters a code is drawn from. 0, O, 1 and I
// are left out because they are easy to misread.
const CodeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// CodeGenerator produces candidate pickup codes. Uniqueness is enforced by
// the workflow, not the generator.
type CodeGenerator interface {
	NewCode() (string, error)
}

// CodeGeneratorFunc adapts a function to CodeGenerator.
type CodeGeneratorFunc func() (string, error)

// NewCode implements CodeGenerator.
func (f CodeGeneratorFunc) NewCode() (string, error) { return f() }

// RandomCodes draws uniformly from CodeAlphabet using crypto/rand.
type RandomCodes struct{}

// NewCode implements CodeGenerator.
func (RandomCodes) NewCode() (string, error) {
	limit := big.NewInt(int64(len(CodeAlphabet)))
	buf := make([]byte, CodeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		buf[i] = CodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// ValidCode reports whether code has the right length and alphabet.
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(CodeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
