package cache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const (
	entryFormatVersionCurrent = 2
	nonceFormatVersionCurrent = 1

	maxClassesPerEntry = 255
)

// SessionEntry is the cached summary of an active session. Its presence is what
// allows QR tokens to be issued for the session. Times are unix seconds.
type SessionEntry struct {
	TeacherID string
	CourseID  string
	ClassIDs  []string
	StartedAt int64
	EndsAt    int64
}

// NonceRecord binds a single-use QR nonce to the session it was issued for.
type NonceRecord struct {
	SessionID string
	IssuedAt  int64
	ExpiresAt int64
}

// EncodeSessionEntry serializes e into the versioned binary format.
func EncodeSessionEntry(e *SessionEntry) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(entryFormatVersionCurrent)

	if err := writeString(&buf, e.TeacherID, "teacherID"); err != nil {
		return nil, err
	}
	if err := writeString(&buf, e.CourseID, "courseID"); err != nil {
		return nil, err
	}

	if len(e.ClassIDs) > maxClassesPerEntry {
		return nil, errors.New("too many classes")
	}
	buf.WriteByte(byte(len(e.ClassIDs)))
	for _, classID := range e.ClassIDs {
		if err := writeString(&buf, classID, "classID"); err != nil {
			return nil, err
		}
	}

	if err := binary.Write(&buf, binary.BigEndian, e.StartedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, e.EndsAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecodeSessionEntry parses data produced by [EncodeSessionEntry].
func DecodeSessionEntry(data []byte) (*SessionEntry, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != entryFormatVersionCurrent {
		return nil, errors.New("invalid session entry version")
	}

	e := &SessionEntry{}
	if e.TeacherID, err = readString(reader); err != nil {
		return nil, err
	}
	if e.CourseID, err = readString(reader); err != nil {
		return nil, err
	}

	count, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if count > 0 {
		e.ClassIDs = make([]string, 0, count)
	}
	for i := 0; i < int(count); i++ {
		classID, err := readString(reader)
		if err != nil {
			return nil, err
		}
		e.ClassIDs = append(e.ClassIDs, classID)
	}

	if err := binary.Read(reader, binary.BigEndian, &e.StartedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &e.EndsAt); err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in session entry")
	}

	return e, nil
}

// EncodeNonceRecord serializes r into the versioned binary format.
func EncodeNonceRecord(r *NonceRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(nonceFormatVersionCurrent)

	if err := writeString(&buf, r.SessionID, "sessionID"); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecodeNonceRecord parses data produced by [EncodeNonceRecord].
func DecodeNonceRecord(data []byte) (*NonceRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != nonceFormatVersionCurrent {
		return nil, errors.New("invalid nonce record version")
	}

	r := &NonceRecord{}
	if r.SessionID, err = readString(reader); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &r.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &r.ExpiresAt); err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in nonce record")
	}

	return r, nil
}

func writeString(buf *bytes.Buffer, s, field string) error {
	if len(s) > 255 {
		return errors.New(field + " too long")
	}
	buf.WriteByte(byte(len(s)))
	buf.WriteString(s)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	n, err := reader.ReadByte()
	if err != nil {
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
