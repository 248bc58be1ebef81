package version

import (
	"fmt"
)

// Azureus-style peer id prefix (BEP 20): a dash, two client letters, four version characters and
// a closing dash. GenerateFingerprint("SE", 0, 1, 0, 0) is "-SE0100-".
func GenerateFingerprint(client string, major, minor, revision, tag int) string {
	letters := []rune(client)
	if len(letters) < 2 {
		letters = []rune("--")
	}
	b := []rune{'-', letters[0], letters[1]}
	for _, v := range [...]int{major, minor, revision, tag} {
		b = append(b, versionChar(v))
	}
	return string(append(b, '-'))
}

// 0-9 stay digits, 10 and up become letters from 'A'.
func versionChar(v int) rune {
	if v < 0 {
		panic(fmt.Sprintf("negative version number %v in fingerprint", v))
	}
	if v < 10 {
		return '0' + rune(v)
	}
	return 'A' + rune(v-10)
}
