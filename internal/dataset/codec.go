package dataset

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
)

// On-disk schema versions (spec.md §3 "On-disk encoding", §9 OQ1). Version
// 2 is the current schema (the union of every field in spec.md §3);
// version 1 is the single previous schema kept for back-compat decode, the
// pre-contacts/comment/region/last_checked/provenance shape captured in
// original_source/src/dataset/mod.rs's OldDataset. No further versions are
// chained, by design (spec.md §9 OQ1).
const (
	schemaV1 = 1
	schemaV2 = 2
)

// zstdMagic is zstd's four-byte frame magic number; Decode uses it to tell
// a compressed blob from a raw one without needing a side-channel flag.
var zstdMagic = [4]byte{0x28, 0xb5, 0x2f, 0xfd}

// Encode serializes d under the current schema. If compress is true, the
// buffer is wrapped in a zstd frame (spec.md §3 "optionally preceded by a
// length-prefixed compression frame" — here the zstd frame format carries
// its own length/checksum, so no extra length prefix is needed on top).
func Encode(d *Dataset, compress bool) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(schemaV2)

	writeString(&buf, d.Title)
	writeString(&buf, d.Description)
	writeString(&buf, d.Comment)
	writeString(&buf, d.Provenance)
	writeString(&buf, d.License.ID())

	writeUvarint(&buf, uint64(len(d.Contacts)))
	for _, c := range d.Contacts {
		writeString(&buf, c.Name)
		writeUvarint(&buf, uint64(len(c.Emails)))
		for _, e := range c.Emails {
			writeString(&buf, e)
		}
	}

	writeUvarint(&buf, uint64(len(d.Tags)))
	for _, t := range d.Tags {
		writeString(&buf, tagID(t))
	}

	writeRegion(&buf, d.Region)
	writeOptDate(&buf, d.Issued)
	writeOptDate(&buf, d.LastChecked)

	writeString(&buf, d.SourceURL)

	writeUvarint(&buf, uint64(len(d.Resources)))
	for _, r := range d.Resources {
		buf.WriteByte(byte(r.Type))
		writeString(&buf, r.URL)
	}

	if !compress {
		return buf.Bytes(), nil
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("open zstd writer: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(buf.Bytes(), nil), nil
}

// Decode deserializes a dataset file. It transparently unwraps a zstd
// frame, then tries the current schema; on failure it tries the single
// previous schema and translates it. If both fail, the original current-
// schema error is returned with the context spec.md §4.4 specifies.
func Decode(raw []byte) (*Dataset, error) {
	buf := raw
	if len(raw) >= 4 && [4]byte(raw[:4]) == zstdMagic {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("open zstd reader: %w", err)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress dataset: %w", err)
		}
		buf = out
	}

	d, errV2 := decodeV2(buf)
	if errV2 == nil {
		return d, nil
	}

	if d, err := decodeV1(buf); err == nil {
		return d, nil
	}

	return nil, fmt.Errorf("Failed to deserialize dataset: %w", errV2)
}

func decodeV2(raw []byte) (*Dataset, error) {
	r := bytes.NewReader(raw)
	version, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != schemaV2 {
		return nil, fmt.Errorf("not schema v2 (got %d)", version)
	}

	d := &Dataset{}

	if d.Title, err = readString(r); err != nil {
		return nil, err
	}
	if d.Description, err = readString(r); err != nil {
		return nil, err
	}
	if d.Comment, err = readString(r); err != nil {
		return nil, err
	}
	if d.Provenance, err = readString(r); err != nil {
		return nil, err
	}
	licenseID, err := readString(r)
	if err != nil {
		return nil, err
	}
	d.License = licenseFromID(licenseID)

	nContacts, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nContacts; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		nEmails, err := readUvarint(r)
		if err != nil {
			return nil, err
		}
		emails := make([]string, 0, nEmails)
		for j := uint64(0); j < nEmails; j++ {
			e, err := readString(r)
			if err != nil {
				return nil, err
			}
			emails = append(emails, e)
		}
		d.Contacts = append(d.Contacts, Contact{Name: name, Emails: emails})
	}

	nTags, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nTags; i++ {
		id, err := readString(r)
		if err != nil {
			return nil, err
		}
		d.Tags = append(d.Tags, tagFromID(id))
	}

	if d.Region, err = readRegion(r); err != nil {
		return nil, err
	}
	if d.Issued, err = readOptDate(r); err != nil {
		return nil, err
	}
	if d.LastChecked, err = readOptDate(r); err != nil {
		return nil, err
	}
	if d.SourceURL, err = readString(r); err != nil {
		return nil, err
	}

	nResources, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nResources; i++ {
		typByte, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		url, err := readString(r)
		if err != nil {
			return nil, err
		}
		d.Resources = append(d.Resources, Resource{Type: ResourceType(typByte), URL: url})
	}

	return d, nil
}

// decodeV1 reads the previous schema and maps it onto the current one.
// Fields the old schema never had (Comment, Provenance, Contacts, Region,
// LastChecked) are left at their zero value, per SPEC_FULL.md §3. Tags
// were plain strings in v1; they upgrade via ParseTag.
func decodeV1(raw []byte) (*Dataset, error) {
	r := bytes.NewReader(raw)
	version, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != schemaV1 {
		return nil, fmt.Errorf("not schema v1 (got %d)", version)
	}

	d := &Dataset{}

	if d.Title, err = readString(r); err != nil {
		return nil, err
	}
	if d.Description, err = readString(r); err != nil {
		return nil, err
	}
	licenseID, err := readString(r)
	if err != nil {
		return nil, err
	}
	d.License = licenseFromID(licenseID)

	nTags, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nTags; i++ {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		d.Tags = append(d.Tags, ParseTag(s))
	}

	if d.SourceURL, err = readString(r); err != nil {
		return nil, err
	}

	nResources, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nResources; i++ {
		typByte, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		url, err := readString(r)
		if err != nil {
			return nil, err
		}
		d.Resources = append(d.Resources, Resource{Type: ResourceType(typByte), URL: url})
	}

	if d.Issued, err = readOptDate(r); err != nil {
		return nil, err
	}

	return d, nil
}

// EncodeV1 is used only by tests to build back-compat fixtures.
func EncodeV1(d *Dataset) []byte {
	var buf bytes.Buffer
	buf.WriteByte(schemaV1)
	writeString(&buf, d.Title)
	writeString(&buf, d.Description)
	writeString(&buf, d.License.ID())
	writeUvarint(&buf, uint64(len(d.Tags)))
	for _, t := range d.Tags {
		writeString(&buf, t.String())
	}
	writeString(&buf, d.SourceURL)
	writeUvarint(&buf, uint64(len(d.Resources)))
	for _, r := range d.Resources {
		buf.WriteByte(byte(r.Type))
		writeString(&buf, r.URL)
	}
	writeOptDate(&buf, d.Issued)
	return buf.Bytes()
}

func tagID(t Tag) string {
	// Other tags must round-trip their exact string; known tags round-trip
	// through their canonical acronym via ParseTag.
	return t.String()
}

func tagFromID(s string) Tag {
	return ParseTag(s)
}

func licenseFromID(id string) License {
	switch id {
	case "DlDeBy20":
		return DlDeBy20
	case "DlDeZero20":
		return DlDeZero20
	case "CcBy40":
		return CcBy40
	case "GeoNutz20130319":
		return GeoNutz20130319
	case "DorisBfs":
		return DorisBfs
	case "OfficialWork":
		return OfficialWork
	case "Unknown":
		return Unknown
	default:
		if len(id) > len("other:") && id[:len("other:")] == "other:" {
			return OtherLicense(id[len("other:"):])
		}
		return Unknown
	}
}

func writeRegion(buf *bytes.Buffer, r *Region) {
	if r == nil {
		buf.WriteByte(0)
		return
	}
	if id, ok := r.GeoNameID(); ok {
		buf.WriteByte(1)
		writeUvarint(buf, id)
		return
	}
	buf.WriteByte(2)
	writeString(buf, r.other)
}

func readRegion(r io.ByteReader) (*Region, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case 0:
		return nil, nil
	case 1:
		id, err := readUvarintReader(r)
		if err != nil {
			return nil, err
		}
		reg := GeoNameRegion(id)
		return &reg, nil
	case 2:
		s, err := readStringReader(r)
		if err != nil {
			return nil, err
		}
		reg := OtherRegion(s)
		return &reg, nil
	default:
		return nil, fmt.Errorf("invalid region tag %d", tag)
	}
}

func writeOptDate(buf *bytes.Buffer, d *Date) {
	if d == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	writeUvarint(buf, uint64(int64(d.Year)))
	buf.WriteByte(byte(d.Month))
	buf.WriteByte(byte(d.Day))
}

func readOptDate(r io.ByteReader) (*Date, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if tag == 0 {
		return nil, nil
	}
	year, err := readUvarintReader(r)
	if err != nil {
		return nil, err
	}
	month, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	day, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	d := Date{Year: int(year), Month: time.Month(month), Day: int(day)}
	return &d, nil
}

func writeString(buf *bytes.Buffer, s string) {
	writeUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	return readStringReader(r)
}

func readStringReader(r io.ByteReader) (string, error) {
	n, err := readUvarintReader(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	for i := range b {
		c, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		b[i] = c
	}
	return string(b), nil
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func readUvarint(r *bytes.Reader) (uint64, error) {
	return binary.ReadUvarint(r)
}

func readUvarintReader(r io.ByteReader) (uint64, error) {
	return binary.ReadUvarint(r)
}
