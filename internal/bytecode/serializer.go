package bytecode

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Serializer 程序镜像序列化器
type Serializer struct {
	buf  *bytes.Buffer
	mode cbor.EncMode
}

// NewSerializer 创建序列化器
func NewSerializer() (*Serializer, error) {
	// 规范编码保证同一程序总是得到相同的字节
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create cbor encoder: %w", err)
	}
	return &Serializer{buf: new(bytes.Buffer), mode: mode}, nil
}

// Encode 序列化程序
func Encode(p *Program) ([]byte, error) {
	s, err := NewSerializer()
	if err != nil {
		return nil, err
	}
	return s.Serialize(p)
}

// Serialize 写入头部与 CBOR 编码的程序体
func (s *Serializer) Serialize(p *Program) ([]byte, error) {
	s.buf.Reset()
	s.writeHeader()

	body, err := s.mode.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode program: %w", err)
	}
	s.buf.Write(body)
	return s.buf.Bytes(), nil
}

// writeHeader 写入文件头
func (s *Serializer) writeHeader() {
	binary.Write(s.buf, binary.BigEndian, MagicNumber)
	s.buf.WriteByte(MajorVersion)
	s.buf.WriteByte(MinorVersion)
}
