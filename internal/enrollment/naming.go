package enrollment

import (
	"fmt"
	"path/filepath"
	"strings"

	"faceauth-go/internal/faceauth"

	"github.com/google/uuid"
)

const (
	samplePrefix = "face_"
	sampleExt    = ".jpg"
)

// SampleName erzeugt einen neuen Dateinamen face_<identity>_<random>.jpg
func SampleName(identity string) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s%s_%s%s", samplePrefix, identity, random, sampleExt)
}

// ParseSampleName liefert die Identität aus einem Dateinamen der Form
// face_<identity>_<random>.<ext>. Verzeichnisanteile werden ignoriert.
func ParseSampleName(name string) (string, bool) {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	rest, ok := strings.CutPrefix(base, samplePrefix)
	if !ok {
		return "", false
	}

	idx := strings.LastIndex(rest, "_")
	if idx <= 0 || idx == len(rest)-1 {
		return "", false
	}

	identity := rest[:idx]
	if faceauth.ValidateIdentity(identity) != nil {
		return "", false
	}
	return identity, true
}

// isImageFile meldet, ob path eine unterstützte Bilddatei ist
func isImageFile(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}
