package flows

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const (
	totpRecordVersion1       = 1
	backupCodeRecordVersion1 = 1
	smsSessionVersion1       = 1
)

// ErrRecordCorrupt is returned when a stored record cannot be decoded.
var ErrRecordCorrupt = errors.New("verification record corrupt")

// TOTPRecord is the vault value under totp_settings_<userId>.
type TOTPRecord struct {
	Secret string
	// LastUsedCounter is the most recent accepted time step, -1 before first use.
	LastUsedCounter int64
	CreatedAt       time.Time
}

// BackupCodeSet is the vault value under backup_codes_<userId>.
type BackupCodeSet struct {
	UserID    string
	Hashes    [][32]byte
	CreatedAt time.Time
}

// Contains reports the index of hash in the set, or -1.
func (s *BackupCodeSet) Contains(hash [32]byte) int {
	for i, h := range s.Hashes {
		if h == hash {
			return i
		}
	}
	return -1
}

// Without returns a copy of the set with the hash at index i removed.
func (s *BackupCodeSet) Without(i int) *BackupCodeSet {
	out := &BackupCodeSet{UserID: s.UserID, CreatedAt: s.CreatedAt}
	out.Hashes = make([][32]byte, 0, len(s.Hashes)-1)
	out.Hashes = append(out.Hashes, s.Hashes[:i]...)
	out.Hashes = append(out.Hashes, s.Hashes[i+1:]...)
	return out
}

// SMSSession is the vault value under sms_session_<userId>.
type SMSSession struct {
	UserID            string
	Target            string
	ProviderSessionID string
	ExpiresAt         time.Time
	AttemptsUsed      uint16
	AttemptsMax       uint16
	LastSentAt        time.Time
}

// Exhausted reports whether no attempts remain.
func (s *SMSSession) Exhausted() bool {
	return s.AttemptsUsed >= s.AttemptsMax
}

func EncodeTOTPRecord(r *TOTPRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(totpRecordVersion1)
	if err := binary.Write(&buf, binary.BigEndian, r.LastUsedCounter); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.CreatedAt.UnixMilli()); err != nil {
		return nil, err
	}
	if err := writeString16(&buf, r.Secret); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeTOTPRecord(data []byte) (*TOTPRecord, error) {
	reader := bytes.NewReader(data)
	if err := readVersion(reader, totpRecordVersion1); err != nil {
		return nil, err
	}

	r := &TOTPRecord{}
	var created int64
	if err := binary.Read(reader, binary.BigEndian, &r.LastUsedCounter); err != nil {
		return nil, ErrRecordCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &created); err != nil {
		return nil, ErrRecordCorrupt
	}
	r.CreatedAt = time.UnixMilli(created)

	var err error
	if r.Secret, err = readString16(reader); err != nil {
		return nil, err
	}
	return r, nil
}

func EncodeBackupCodeSet(s *BackupCodeSet) ([]byte, error) {
	if len(s.Hashes) > 65535 {
		return nil, errors.New("backup code set too large")
	}
	var buf bytes.Buffer
	buf.WriteByte(backupCodeRecordVersion1)
	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt.UnixMilli()); err != nil {
		return nil, err
	}
	if err := writeString16(&buf, s.UserID); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(s.Hashes))); err != nil {
		return nil, err
	}
	for _, h := range s.Hashes {
		buf.Write(h[:])
	}
	return buf.Bytes(), nil
}

func DecodeBackupCodeSet(data []byte) (*BackupCodeSet, error) {
	reader := bytes.NewReader(data)
	if err := readVersion(reader, backupCodeRecordVersion1); err != nil {
		return nil, err
	}

	s := &BackupCodeSet{}
	var created int64
	if err := binary.Read(reader, binary.BigEndian, &created); err != nil {
		return nil, ErrRecordCorrupt
	}
	s.CreatedAt = time.UnixMilli(created)

	var err error
	if s.UserID, err = readString16(reader); err != nil {
		return nil, err
	}

	var count uint16
	if err := binary.Read(reader, binary.BigEndian, &count); err != nil {
		return nil, ErrRecordCorrupt
	}
	s.Hashes = make([][32]byte, count)
	for i := range s.Hashes {
		if _, err := io.ReadFull(reader, s.Hashes[i][:]); err != nil {
			return nil, ErrRecordCorrupt
		}
	}
	return s, nil
}

func EncodeSMSSession(s *SMSSession) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(smsSessionVersion1)
	for _, v := range []any{s.AttemptsUsed, s.AttemptsMax, s.ExpiresAt.UnixMilli(), s.LastSentAt.UnixMilli()} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}
	for _, str := range []string{s.UserID, s.Target, s.ProviderSessionID} {
		if err := writeString16(&buf, str); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func DecodeSMSSession(data []byte) (*SMSSession, error) {
	reader := bytes.NewReader(data)
	if err := readVersion(reader, smsSessionVersion1); err != nil {
		return nil, err
	}

	s := &SMSSession{}
	var expires, lastSent int64
	for _, v := range []any{&s.AttemptsUsed, &s.AttemptsMax, &expires, &lastSent} {
		if err := binary.Read(reader, binary.BigEndian, v); err != nil {
			return nil, ErrRecordCorrupt
		}
	}
	s.ExpiresAt = time.UnixMilli(expires)
	s.LastSentAt = time.UnixMilli(lastSent)

	var err error
	if s.UserID, err = readString16(reader); err != nil {
		return nil, err
	}
	if s.Target, err = readString16(reader); err != nil {
		return nil, err
	}
	if s.ProviderSessionID, err = readString16(reader); err != nil {
		return nil, err
	}
	return s, nil
}

func readVersion(reader *bytes.Reader, want byte) error {
	version, err := reader.ReadByte()
	if err != nil || version != want {
		return ErrRecordCorrupt
	}
	return nil
}

func writeString16(buf *bytes.Buffer, s string) error {
	if len(s) > 65535 {
		return errors.New("record field length exceeded")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString16(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", ErrRecordCorrupt
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(reader, b); err != nil {
		return "", ErrRecordCorrupt
	}
	return string(b), nil
}
