package transport

import (
	"encoding/binary"

	"github.com/spirit-labs/docfetch/errors"
)

/*
Frames on a socket connection. Every frame starts with the length of the rest of the frame as a big-endian uint32,
which sockserver strips off. All integers are big-endian.

request:  version uint16 | correlation id uint64 | handler id uint32 | request bytes
response: version uint16 | correlation id uint64 | status byte | response bytes
error:    version uint16 | correlation id uint64 | status byte | error code uint16 | msg length uint32 | msg
*/

const (
	frameVersion       uint16 = 1
	requestHeaderSize         = 2 + 8 + 4
	responseHeaderSize        = 2 + 8 + 1
	statusOK           byte   = 0
	statusError        byte   = 1
)

type requestFrame struct {
	correlationID uint64
	handlerID     int
	body          []byte
}

type responseFrame struct {
	correlationID uint64
	body          []byte
	err           error
}

func appendRequestFrame(buff []byte, correlationID uint64, handlerID int, body []byte) []byte {
	buff = binary.BigEndian.AppendUint32(buff, uint32(requestHeaderSize+len(body)))
	buff = binary.BigEndian.AppendUint16(buff, frameVersion)
	buff = binary.BigEndian.AppendUint64(buff, correlationID)
	buff = binary.BigEndian.AppendUint32(buff, uint32(handlerID))
	return append(buff, body...)
}

func appendResponseFrame(buff []byte, correlationID uint64, body []byte) []byte {
	buff = binary.BigEndian.AppendUint32(buff, uint32(responseHeaderSize+len(body)))
	buff = binary.BigEndian.AppendUint16(buff, frameVersion)
	buff = binary.BigEndian.AppendUint64(buff, correlationID)
	buff = append(buff, statusOK)
	return append(buff, body...)
}

func appendErrorFrame(buff []byte, correlationID uint64, ferr errors.FetchError) []byte {
	buff = binary.BigEndian.AppendUint32(buff, uint32(responseHeaderSize+2+4+len(ferr.Msg)))
	buff = binary.BigEndian.AppendUint16(buff, frameVersion)
	buff = binary.BigEndian.AppendUint64(buff, correlationID)
	buff = append(buff, statusError)
	buff = binary.BigEndian.AppendUint16(buff, uint16(ferr.Code))
	buff = binary.BigEndian.AppendUint32(buff, uint32(len(ferr.Msg)))
	return append(buff, ferr.Msg...)
}

func checkFrameVersion(frame []byte) error {
	if version := binary.BigEndian.Uint16(frame); version != frameVersion {
		return errors.Errorf("invalid frame version %d, only version %d is supported", version, frameVersion)
	}
	return nil
}

// decodeRequestFrame decodes a frame without its length prefix. body aliases frame.
func decodeRequestFrame(frame []byte) (requestFrame, error) {
	if len(frame) < requestHeaderSize {
		return requestFrame{}, errors.Errorf("request frame too short: %d bytes", len(frame))
	}
	if err := checkFrameVersion(frame); err != nil {
		return requestFrame{}, err
	}
	return requestFrame{
		correlationID: binary.BigEndian.Uint64(frame[2:]),
		handlerID:     int(binary.BigEndian.Uint32(frame[10:])),
		body:          frame[requestHeaderSize:],
	}, nil
}

// decodeResponseFrame decodes a frame without its length prefix. An error response is returned in the err field of
// the frame, the returned error means the frame itself is malformed. body aliases frame.
func decodeResponseFrame(frame []byte) (responseFrame, error) {
	if len(frame) < responseHeaderSize {
		return responseFrame{}, errors.Errorf("response frame too short: %d bytes", len(frame))
	}
	if err := checkFrameVersion(frame); err != nil {
		return responseFrame{}, err
	}
	resp := responseFrame{correlationID: binary.BigEndian.Uint64(frame[2:])}
	body := frame[responseHeaderSize:]
	switch frame[10] {
	case statusOK:
		resp.body = body
	case statusError:
		if len(body) < 6 {
			return responseFrame{}, errors.Errorf("error response too short: %d bytes", len(body))
		}
		code := errors.ErrorCode(binary.BigEndian.Uint16(body))
		msgLen := int(binary.BigEndian.Uint32(body[2:]))
		if len(body) < 6+msgLen {
			return responseFrame{}, errors.Errorf("error message truncated, expected %d bytes got %d", msgLen,
				len(body)-6)
		}
		resp.err = errors.NewFetchError(code, string(body[6:6+msgLen]))
	default:
		return responseFrame{}, errors.Errorf("unknown response status %d", frame[10])
	}
	return resp, nil
}
