package codec

import (
	"errors"
	"fmt"

	"llmgate/internal/types"
)

// ErrProtocolMismatch reports a payload missing a field its declared protocol
// requires. Absent optional fields never trigger it.
var ErrProtocolMismatch = errors.New("protocol mismatch")

// ErrUnsupportedProtocol reports a protocol the codec layer does not know.
var ErrUnsupportedProtocol = errors.New("unsupported protocol")

func mismatch(protocol Protocol, field string) error {
	return fmt.Errorf("%w: %s payload missing required field %q", ErrProtocolMismatch, protocol, field)
}

// DecodeRequest parses a protocol p request payload into canonical form.
func DecodeRequest(payload []byte, p Protocol) (*types.CanonicalRequest, error) {
	return decodeRequest(payload, p)
}

// DecodeResponse parses a protocol p response payload into canonical form.
func DecodeResponse(payload []byte, p Protocol) (*types.CanonicalResponse, error) {
	return decodeResponse(payload, p)
}

// EncodeRequest renders a canonical request in protocol p.
func EncodeRequest(req *types.CanonicalRequest, p Protocol) ([]byte, error) {
	return encodeRequest(req, p)
}

// EncodeResponse renders a canonical response in protocol p.
func EncodeResponse(resp *types.CanonicalResponse, p Protocol) ([]byte, error) {
	return encodeResponse(resp, p)
}

func decodeRequest(payload []byte, p Protocol) (*types.CanonicalRequest, error) {
	switch p {
	case ProtocolOpenAIChat:
		return decodeChatRequest(payload)
	case ProtocolOpenAIResponses:
		return decodeResponsesRequest(payload)
	case ProtocolAnthropic:
		return decodeAnthropicRequest(payload)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, p)
	}
}

func encodeRequest(req *types.CanonicalRequest, p Protocol) ([]byte, error) {
	switch p {
	case ProtocolOpenAIChat:
		return encodeChatRequest(req)
	case ProtocolOpenAIResponses:
		return encodeResponsesRequest(req)
	case ProtocolAnthropic:
		return encodeAnthropicRequest(req)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, p)
	}
}

func decodeResponse(payload []byte, p Protocol) (*types.CanonicalResponse, error) {
	switch p {
	case ProtocolOpenAIChat:
		return decodeChatResponse(payload)
	case ProtocolOpenAIResponses:
		return decodeResponsesResponse(payload)
	case ProtocolAnthropic:
		return decodeAnthropicResponse(payload)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, p)
	}
}

func encodeResponse(resp *types.CanonicalResponse, p Protocol) ([]byte, error) {
	switch p {
	case ProtocolOpenAIChat:
		return encodeChatResponse(resp)
	case ProtocolOpenAIResponses:
		return encodeResponsesResponse(resp)
	case ProtocolAnthropic:
		return encodeAnthropicResponse(resp)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, p)
	}
}
