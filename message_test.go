package main

import (
	"net"
	"strings"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryEncodeReference(t *testing.T) {
	query, err := NewQuery(0xdb42, "www.example.com")
	require.NoError(t, err)

	raw, err := query.Encode()
	require.NoError(t, err)

	expected := []byte{
		0xdb, 0x42, // ID
		0x01, 0x00, // RD set, everything else zero
		0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // counts
		3, 'w', 'w', 'w', 7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 3, 'c', 'o', 'm', 0,
		0x00, 0x01, // type A
		0x00, 0x01, // class IN
	}
	assert.Equal(t, expected, raw)
}

func TestMessageRoundTrip(t *testing.T) {
	m := &Message{
		Header: Header{
			ID: 0x1234, QR: true, AA: true, RD: true, RA: true,
			QDCount: 1, ANCount: 1, NSCount: 1, ARCount: 1,
		},
		Questions: []Question{{Name: "abc1234.example.com", Type: TypeA, Class: ClassIN}},
		Answers: []ResourceRecord{{
			Name: "abc1234.example.com", Type: TypeA, Class: ClassIN, TTL: 0,
			Addr: [4]byte{127, 0, 0, 1},
		}},
		Authorities: []ResourceRecord{{
			Name: "example.com", Type: TypeNS, Class: ClassIN, TTL: 240,
			NS: "ns.evil.test",
		}},
		Additionals: []ResourceRecord{{
			Name: "ns.evil.test", Type: TypeA, Class: ClassIN, TTL: 240,
			Addr: [4]byte{10, 0, 0, 66},
		}},
	}

	raw, err := m.Encode()
	require.NoError(t, err)

	decoded, err := DecodeMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, m, decoded)
}

func TestEncodeRejectsLongLabel(t *testing.T) {
	name := strings.Repeat("a", maxLabelLen+1) + ".example.com"
	m := &Message{
		Header:    Header{ID: 1, QDCount: 1},
		Questions: []Question{{Name: name, Type: TypeA, Class: ClassIN}},
	}
	_, err := m.Encode()
	require.ErrorIs(t, err, ErrEncoding)
}

func TestEncodeRejectsLongName(t *testing.T) {
	// 32 eight-octet labels encode to 288 octets, past the 255 limit
	name := strings.TrimSuffix(strings.Repeat("abcdefgh.", 32), ".")
	m := &Message{
		Header:    Header{ID: 1, QDCount: 1},
		Questions: []Question{{Name: name, Type: TypeA, Class: ClassIN}},
	}
	_, err := m.Encode()
	require.ErrorIs(t, err, ErrEncoding)
}

func TestEncodeRejectsUninterpretedType(t *testing.T) {
	m := &Message{
		Header: Header{ID: 1, ANCount: 1},
		Answers: []ResourceRecord{{
			Name: "example.com", Type: TypeTXT, Class: ClassIN, Data: []byte("hello"),
		}},
	}
	_, err := m.Encode()
	require.ErrorIs(t, err, ErrEncoding)
}

func TestDecodeCompressedNames(t *testing.T) {
	raw := []byte{
		0xbe, 0xef, // ID
		0x81, 0x80, // QR, RD, RA
		0x00, 0x01, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00,
		// question at offset 12
		3, 'w', 'w', 'w', 7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 3, 'c', 'o', 'm', 0,
		0x00, 0x01, 0x00, 0x01,
		// answer: name is a pointer to the question name
		0xc0, 0x0c,
		0x00, 0x01, 0x00, 0x01,
		0x00, 0x00, 0x00, 0x3c,
		0x00, 0x04,
		93, 184, 216, 34,
		// authority: NS record whose owner and RDATA both use pointers
		0xc0, 0x10, // "example.com"
		0x00, 0x02, 0x00, 0x01,
		0x00, 0x00, 0x00, 0xf0,
		0x00, 0x05,
		2, 'n', 's', 0xc0, 0x10, // "ns.example.com" via pointer
	}

	m, err := DecodeMessage(raw)
	require.NoError(t, err)

	require.Len(t, m.Answers, 1)
	assert.Equal(t, "www.example.com", m.Answers[0].Name)
	assert.Equal(t, [4]byte{93, 184, 216, 34}, m.Answers[0].Addr)

	require.Len(t, m.Authorities, 1)
	assert.Equal(t, "example.com", m.Authorities[0].Name)
	assert.Equal(t, "ns.example.com", m.Authorities[0].NS)
	assert.Equal(t, uint32(240), m.Authorities[0].TTL)
}

func TestDecodeSkipsUninterpretedRData(t *testing.T) {
	raw := []byte{
		0x00, 0x01,
		0x81, 0x80,
		0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00,
		// answer with a TXT record this tool does not interpret
		7, 'e', 'x', 'a', 'm', 'p', 'l', 'e', 3, 'c', 'o', 'm', 0,
		0x00, 0x10, 0x00, 0x01,
		0x00, 0x00, 0x00, 0x3c,
		0x00, 0x06,
		5, 'h', 'e', 'l', 'l', 'o',
	}

	m, err := DecodeMessage(raw)
	require.NoError(t, err)
	require.Len(t, m.Answers, 1)
	assert.Equal(t, TypeTXT, m.Answers[0].Type)
	assert.Equal(t, []byte{5, 'h', 'e', 'l', 'l', 'o'}, m.Answers[0].Data)
}

func TestDecodeTruncatedBuffers(t *testing.T) {
	query, err := NewQuery(7, "www.example.com")
	require.NoError(t, err)
	raw, err := query.Encode()
	require.NoError(t, err)

	cases := map[string][]byte{
		"shorter than header": raw[:8],
		"ends mid-name":       raw[:15],
		"ends mid-question":   raw[:len(raw)-2],
		"empty":               {},
	}
	for name, buf := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeMessage(buf)
			require.ErrorIs(t, err, ErrMalformedMessage)
		})
	}
}

func TestDecodeRejectsBadPointers(t *testing.T) {
	// header claiming one question whose name points forward
	raw := []byte{
		0x00, 0x01, 0x00, 0x00,
		0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0xc0, 0x20, // pointer past its own position
		0x00, 0x01, 0x00, 0x01,
	}
	_, err := DecodeMessage(raw)
	require.ErrorIs(t, err, ErrMalformedMessage)
}

func TestDecodeCountsExceedBuffer(t *testing.T) {
	query, err := NewQuery(7, "www.example.com")
	require.NoError(t, err)
	raw, err := query.Encode()
	require.NoError(t, err)

	// claim an answer record that is not there
	raw[7] = 1
	_, err = DecodeMessage(raw)
	require.ErrorIs(t, err, ErrMalformedMessage)
}

// Differential check: our encoder's output must be readable by an
// independent DNS implementation.
func TestSpoofedResponseReadByMiekg(t *testing.T) {
	query, err := NewQuery(0x4242, "www.example.com")
	require.NoError(t, err)
	resp, err := NewSpoofedResponse(query, net.IPv4(10, 9, 9, 9), 0, "example.com", "ns.evil.test", 240)
	require.NoError(t, err)

	raw, err := resp.Encode()
	require.NoError(t, err)

	var m dns.Msg
	require.NoError(t, m.Unpack(raw))

	assert.Equal(t, uint16(0x4242), m.Id)
	assert.True(t, m.Response)
	assert.True(t, m.Authoritative)

	require.Len(t, m.Question, 1)
	assert.Equal(t, "www.example.com.", m.Question[0].Name)
	assert.Equal(t, dns.TypeA, m.Question[0].Qtype)

	require.Len(t, m.Answer, 1)
	a, ok := m.Answer[0].(*dns.A)
	require.True(t, ok)
	assert.True(t, a.A.Equal(net.IPv4(10, 9, 9, 9)))

	require.Len(t, m.Ns, 1)
	ns, ok := m.Ns[0].(*dns.NS)
	require.True(t, ok)
	assert.Equal(t, "example.com.", ns.Hdr.Name)
	assert.Equal(t, "ns.evil.test.", ns.Ns)
	assert.Equal(t, uint32(240), ns.Hdr.Ttl)
}

// Differential check the other way: a compressed message produced by an
// independent implementation must decode correctly.
func TestDecodeCompressedMiekgMessage(t *testing.T) {
	m := new(dns.Msg)
	m.SetQuestion("www.example.com.", dns.TypeA)
	m.Response = true
	m.Compress = true
	m.Answer = append(m.Answer, &dns.A{
		Hdr: dns.RR_Header{Name: "www.example.com.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
		A:   net.IPv4(192, 0, 2, 7),
	})
	m.Ns = append(m.Ns, &dns.NS{
		Hdr: dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeNS, Class: dns.ClassINET, Ttl: 60},
		Ns:  "ns1.example.com.",
	})

	raw, err := m.Pack()
	require.NoError(t, err)

	decoded, err := DecodeMessage(raw)
	require.NoError(t, err)
	require.Len(t, decoded.Questions, 1)
	assert.Equal(t, "www.example.com", decoded.Questions[0].Name)
	require.Len(t, decoded.Answers, 1)
	assert.Equal(t, "www.example.com", decoded.Answers[0].Name)
	assert.Equal(t, [4]byte{192, 0, 2, 7}, decoded.Answers[0].Addr)
	require.Len(t, decoded.Authorities, 1)
	assert.Equal(t, "ns1.example.com", decoded.Authorities[0].NS)
}

func TestValidHostname(t *testing.T) {
	valid := []string{"example.com", "www.example.com", "a", "a-b.c", "1.2.3.4", "xn--e1afmkfd.xn--p1ai"}
	for _, h := range valid {
		assert.True(t, validHostname(h), h)
	}
	invalid := []string{"", "-example.com", "example.com-", "exa mple.com", "host_name", strings.Repeat("a", 256)}
	for _, h := range invalid {
		assert.False(t, validHostname(h), h)
	}
}

func TestParentDomain(t *testing.T) {
	assert.Equal(t, "example.com", parentDomain("www.example.com"))
	assert.Equal(t, "com", parentDomain("example.com"))
	assert.Equal(t, "localhost", parentDomain("localhost"))
}
