package store

import (
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	MetadataFile  = "metadata.json"
	AudioDir      = "audio_files"
	StagedSuffix  = ".part"
	lockDir       = ".locks"
	defaultRoot   = "articles"
	defaultFormat = "mp3"
)

// Layout maps identifiers and chunk indexes to paths under the articles root:
//
//	<root>/<identifier>/metadata.json
//	<root>/<identifier>/audio_files/<index>.<ext>
type Layout struct {
	Root     string
	AudioExt string
}

func NewLayout(root, audioExt string) Layout {
	if root == "" {
		root = defaultRoot
	}
	audioExt = strings.TrimPrefix(audioExt, ".")
	if audioExt == "" {
		audioExt = defaultFormat
	}
	return Layout{Root: filepath.Clean(root), AudioExt: audioExt}
}

func (l Layout) ArticleDir(id string) string {
	return filepath.Join(l.Root, id)
}

func (l Layout) AudioDir(id string) string {
	return filepath.Join(l.Root, id, AudioDir)
}

func (l Layout) MetadataPath(id string) string {
	return filepath.Join(l.Root, id, MetadataFile)
}

func (l Layout) AudioPath(id string, index int) string {
	return filepath.Join(l.AudioDir(id), l.audioName(index))
}

// AudioRef is the slash-separated audio path recorded in metadata.
func (l Layout) AudioRef(id string, index int) string {
	return path.Join(filepath.ToSlash(l.Root), id, AudioDir, l.audioName(index))
}

func (l Layout) LockPath(id string) string {
	return filepath.Join(l.Root, lockDir, id+".lock")
}

func (l Layout) audioName(index int) string {
	return fmt.Sprintf("%d.%s", index, l.AudioExt)
}

// chunkIndex parses "<index>.<ext>" audio file names.
func (l Layout) chunkIndex(name string) (int, bool) {
	base, ok := strings.CutSuffix(name, "."+l.AudioExt)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(base)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// validID rejects identifiers that would escape the article directory.
func validID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return fmt.Errorf("invalid article identifier %q", id)
	}
	return nil
}
