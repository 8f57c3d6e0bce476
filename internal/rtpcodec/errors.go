package rtpcodec

import "golang.org/x/xerrors"

var (
	errShortPacket = xerrors.New("rtpcodec: packet shorter than RTP header")
	errBadVersion  = xerrors.New("rtpcodec: unsupported RTP version")
)
