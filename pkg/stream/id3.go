// ABOUTME: ID3v2 tag reader for the head of MP3 streams
// ABOUTME: Consumes the tag and returns its text frames as ID3V2 tags
package stream

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/resonate-radio/pkg/metadata"
)

const (
	id3HeaderSize = 10
	// Larger tags (usually with cover art) are skipped unparsed
	id3MaxParse = 1 << 20
)

var errID3Header = errors.New("invalid ID3v2 header")

// readID3 consumes a leading ID3v2 tag from r, if one is present
func readID3(r *bufio.Reader) ([]metadata.Tag, error) {
	head, err := r.Peek(id3HeaderSize)
	if err != nil || !bytes.HasPrefix(head, []byte("ID3")) {
		return nil, nil
	}

	version := head[3]
	flags := head[5]
	size, ok := syncsafe(head[6:10])
	if !ok || version < 2 || version > 4 {
		return nil, errID3Header
	}
	if _, err := r.Discard(id3HeaderSize); err != nil {
		return nil, err
	}
	if flags&0x10 != 0 {
		// Footer
		size += id3HeaderSize
	}

	if size > id3MaxParse {
		_, err := r.Discard(size)
		return nil, err
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read ID3v2 tag: %w", err)
	}
	if flags&0x40 != 0 && version >= 3 {
		body = skipExtendedHeader(body, version)
	}
	return parseID3Frames(body, version), nil
}

func syncsafe(b []byte) (int, bool) {
	n := 0
	for _, c := range b {
		if c&0x80 != 0 {
			return 0, false
		}
		n = n<<7 | int(c)
	}
	return n, true
}

func skipExtendedHeader(body []byte, version byte) []byte {
	if len(body) < 4 {
		return nil
	}
	var size int
	if version == 4 {
		size, _ = syncsafe(body[:4])
	} else {
		size = int(body[0])<<24 | int(body[1])<<16 | int(body[2])<<8 | int(body[3]) + 4
	}
	if size > len(body) {
		return nil
	}
	return body[size:]
}

// parseID3Frames returns every text (T***) frame except user-defined TXXX
func parseID3Frames(body []byte, version byte) []metadata.Tag {
	idLen, headLen := 4, 10
	if version == 2 {
		idLen, headLen = 3, 6
	}

	var tags []metadata.Tag
	for len(body) >= headLen {
		id := string(body[:idLen])
		if body[0] == 0 {
			// Padding
			break
		}

		var size int
		switch version {
		case 2:
			size = int(body[3])<<16 | int(body[4])<<8 | int(body[5])
		case 3:
			size = int(body[4])<<24 | int(body[5])<<16 | int(body[6])<<8 | int(body[7])
		default:
			var ok bool
			if size, ok = syncsafe(body[4:8]); !ok {
				return tags
			}
		}
		if size <= 0 || headLen+size > len(body) {
			break
		}
		data := body[headLen : headLen+size]
		body = body[headLen+size:]

		if id[0] != 'T' || id == "TXXX" || id == "TXX" || len(data) < 1 {
			continue
		}
		dataType, ok := id3Encoding(data[0])
		if !ok {
			continue
		}
		tags = append(tags, metadata.Tag{
			Name:      id,
			Container: metadata.ContainerID3V2,
			DataType:  dataType,
			Data:      data[1:],
		})
	}
	return tags
}

// id3Encoding maps the text encoding byte of a frame to a tag data type
func id3Encoding(b byte) (metadata.DataType, bool) {
	switch b {
	case 0:
		return metadata.DataString, true
	case 1:
		return metadata.DataStringUTF16, true
	case 2:
		return metadata.DataStringUTF16BE, true
	case 3:
		return metadata.DataStringUTF8, true
	default:
		return 0, false
	}
}
