package chain

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"
)

type Height uint64

type Hash [32]byte

func (h Hash) String() string { return fmt.Sprintf("%x", h[:]) }

func (h Hash) Hex() string { return "0x" + h.String() }

func (h Hash) IsZero() bool { return h == Hash{} }

type Block struct {
	Height   Height
	Parent   Hash
	AppHash  Hash // state after executing this block
	Payload  []byte
	Proposer string
	Time     time.Time
}

// HashOfBlock commits to the block contents but not to AppHash, which is
// only known after execution. A block keeps its hash when AppHash is set.
func HashOfBlock(b Block) Hash {
	h := sha256.New()

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(b.Height))
	h.Write(buf[:])

	h.Write(b.Parent[:])

	binary.BigEndian.PutUint64(buf[:], uint64(len(b.Payload)))
	h.Write(buf[:])
	h.Write(b.Payload)

	h.Write([]byte(b.Proposer))

	binary.BigEndian.PutUint64(buf[:], uint64(b.Time.UnixNano()))
	h.Write(buf[:])

	return sha256.Sum256(h.Sum(nil))
}

// BlockStore persists sealed blocks and the committed head.
// Implementations live in pkg/storage.
type BlockStore interface {
	SaveBlock(b Block) error
	GetBlock(h Hash) (Block, bool, error)
	GetBlockByHeight(height Height) (Block, bool, error)
	SetCommitted(h Hash) error
	GetCommitted() (Hash, bool, error)
}

// AppHook is the application side of block production.
type AppHook interface {
	PreparePayload(parent Block, next Height) []byte
	// OnCommit executes the block and returns the resulting state hash.
	OnCommit(committed Block) (Hash, error)
}
