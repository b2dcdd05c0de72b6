package badger

import (
	"encoding/binary"

	"github.com/cmwaters/privpoll/poll"
)

// Key layout. Poll ids and options are big endian so that keys sort
// numerically and prefix scans stay within one poll or option.
//
//	p/<id>                 JSON encoded poll record
//	v/<id><voter>          voter record, empty value
//	g/<id><option><grantee> read grant, empty value
//	d/<identity>           global decryptor, empty value
//	meta/pollCount         next poll id
var (
	pollPrefix      = []byte("p/")
	voterPrefix     = []byte("v/")
	grantPrefix     = []byte("g/")
	decryptorPrefix = []byte("d/")
	pollCountKey    = []byte("meta/pollCount")
)

func pollKey(id uint64) []byte {
	return binary.BigEndian.AppendUint64(clone(pollPrefix), id)
}

func voterKey(id uint64, voter poll.Identity) []byte {
	key := binary.BigEndian.AppendUint64(clone(voterPrefix), id)
	return append(key, voter...)
}

func grantOptionPrefix(id uint64, option int) []byte {
	key := binary.BigEndian.AppendUint64(clone(grantPrefix), id)
	return binary.BigEndian.AppendUint32(key, uint32(option))
}

func grantKey(id uint64, option int, grantee poll.Identity) []byte {
	return append(grantOptionPrefix(id, option), grantee...)
}

func decryptorKey(identity poll.Identity) []byte {
	return append(clone(decryptorPrefix), identity...)
}

func clone(b []byte) []byte {
	return append(make([]byte, 0, len(b)+32), b...)
}
