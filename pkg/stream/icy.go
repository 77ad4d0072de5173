// ABOUTME: Shoutcast/Icecast ICY protocol support
// ABOUTME: Strips interleaved metadata blocks from the audio body and turns them into tags
package stream

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/Resonate-Protocol/resonate-radio/pkg/metadata"
)

// icyHeaders are response headers reported as ICECAST tags
var icyHeaders = []string{"icy-name", "icy-genre", "icy-description", "icy-url", "icy-br"}

// icyReader removes metadata blocks from a body carrying icy-metaint
type icyReader struct {
	r         io.Reader
	metaint   int
	remaining int
	meta      []byte
	onMeta    func(fields []icyField)
}

func newICYReader(r io.Reader, metaint int, onMeta func([]icyField)) *icyReader {
	return &icyReader{
		r:         r,
		metaint:   metaint,
		remaining: metaint,
		meta:      make([]byte, 255*16),
		onMeta:    onMeta,
	}
}

func (i *icyReader) Read(p []byte) (int, error) {
	if i.remaining == 0 {
		if err := i.readMeta(); err != nil {
			return 0, err
		}
		i.remaining = i.metaint
	}
	if len(p) > i.remaining {
		p = p[:i.remaining]
	}
	n, err := i.r.Read(p)
	i.remaining -= n
	return n, err
}

func (i *icyReader) readMeta() error {
	var lenByte [1]byte
	if _, err := io.ReadFull(i.r, lenByte[:]); err != nil {
		return err
	}
	size := int(lenByte[0]) * 16
	if size == 0 {
		return nil
	}
	block := i.meta[:size]
	if _, err := io.ReadFull(i.r, block); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	if fields := parseICYMetadata(block); len(fields) > 0 && i.onMeta != nil {
		i.onMeta(fields)
	}
	return nil
}

type icyField struct {
	Key   string
	Value []byte
}

// parseICYMetadata splits a block of Key='value'; pairs.
// Values may contain quotes or semicolons; only the "';" pair ends one.
func parseICYMetadata(block []byte) []icyField {
	block = bytes.TrimRight(block, "\x00")
	var fields []icyField
	for len(block) > 0 {
		eq := bytes.Index(block, []byte("='"))
		if eq <= 0 {
			break
		}
		key := strings.TrimSpace(string(block[:eq]))
		rest := block[eq+2:]

		end := bytes.Index(rest, []byte("';"))
		var value []byte
		if end < 0 {
			value = bytes.TrimSuffix(rest, []byte("'"))
			block = nil
		} else {
			value = rest[:end]
			block = rest[end+2:]
		}
		fields = append(fields, icyField{Key: key, Value: append([]byte(nil), value...)})
	}
	return fields
}

// icyTags converts metadata fields to SHOUTCAST tags. A StreamTitle of the
// form "Artist - Title" also yields ARTIST and TITLE.
func icyTags(fields []icyField) []metadata.Tag {
	var tags []metadata.Tag
	for _, f := range fields {
		tags = append(tags, textTag(f.Key, metadata.ContainerShoutcast, f.Value))

		if !strings.EqualFold(f.Key, "StreamTitle") {
			continue
		}
		artist, title, ok := bytes.Cut(f.Value, []byte(" - "))
		if !ok {
			continue
		}
		artist = bytes.TrimSpace(artist)
		title = bytes.TrimSpace(title)
		if len(artist) > 0 && len(title) > 0 {
			tags = append(tags,
				textTag(metadata.KeyArtist, metadata.ContainerShoutcast, artist),
				textTag(metadata.KeyTitle, metadata.ContainerShoutcast, title))
		}
	}
	return tags
}

// headerTags reports icy-* response headers as ICECAST tags
func headerTags(h http.Header) []metadata.Tag {
	var tags []metadata.Tag
	for _, name := range icyHeaders {
		if v := h.Get(name); v != "" {
			tags = append(tags, textTag(name, metadata.ContainerIcecast, []byte(v)))
		}
	}
	return tags
}

// textTag labels raw text as UTF-8 when it validates and Latin-1 otherwise
func textTag(name string, container metadata.Container, value []byte) metadata.Tag {
	dataType := metadata.DataString
	if utf8.Valid(value) {
		dataType = metadata.DataStringUTF8
	}
	return metadata.Tag{
		Name:      name,
		Container: container,
		DataType:  dataType,
		Data:      value,
	}
}
