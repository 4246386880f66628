package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	// ErrBadMagic 不是程序镜像
	ErrBadMagic = errors.New("not a program image")
	// ErrVersion 不支持的镜像版本
	ErrVersion = errors.New("unsupported image version")
)

// Deserializer 程序镜像反序列化器
type Deserializer struct {
	data []byte
}

// NewDeserializer 创建反序列化器
func NewDeserializer(data []byte) *Deserializer {
	return &Deserializer{data: data}
}

// Decode 反序列化程序镜像
func Decode(data []byte) (*Program, error) {
	return NewDeserializer(data).Deserialize()
}

// Deserialize 校验头部并解码程序体
func (d *Deserializer) Deserialize() (*Program, error) {
	if err := d.readHeader(); err != nil {
		return nil, err
	}

	var p Program
	if err := cbor.Unmarshal(d.data[HeaderSize:], &p); err != nil {
		return nil, fmt.Errorf("failed to decode program: %w", err)
	}
	p.Bind()
	return &p, nil
}

// readHeader 读取并验证头部
func (d *Deserializer) readHeader() error {
	if len(d.data) < HeaderSize {
		return fmt.Errorf("image too short (%d bytes): %w", len(d.data), ErrBadMagic)
	}
	if magic := binary.BigEndian.Uint32(d.data[:4]); magic != MagicNumber {
		return fmt.Errorf("magic 0x%08X: %w", magic, ErrBadMagic)
	}
	if major := d.data[4]; major != MajorVersion {
		return fmt.Errorf("version %d.%d: %w", major, d.data[5], ErrVersion)
	}
	return nil
}
