package protocol

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

const (
	MagicNumber = 0x43

	OpPredict = 0x01
	OpAdapt   = 0x02
	OpStats   = 0x03

	RespOK  = 0x00
	RespVal = 0x01
	RespErr = 0xFF
)

// Flag bits carried in the trailing byte of a predict request value.
const (
	FlagEnsemble     = 0x01
	FlagOptimizeBeta = 0x02
)

type Packet struct {
	Op    byte
	Key   []byte
	Value []byte
}

func Encode(w io.Writer, op byte, key []byte, value []byte) error {
	header := make([]byte, 8)
	header[0] = MagicNumber
	header[1] = op
	binary.BigEndian.PutUint16(header[2:4], uint16(len(key)))
	binary.BigEndian.PutUint32(header[4:8], uint32(len(value)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	if len(key) > 0 {
		if _, err := w.Write(key); err != nil {
			return err
		}
	}
	if len(value) > 0 {
		if _, err := w.Write(value); err != nil {
			return err
		}
	}
	return nil
}

func Decode(r io.Reader) (*Packet, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	if header[0] != MagicNumber {
		return nil, errors.New("invalid magic number")
	}

	op := header[1]
	kLen := binary.BigEndian.Uint16(header[2:4])
	vLen := binary.BigEndian.Uint32(header[4:8])

	key := make([]byte, kLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}

	val := make([]byte, vLen)
	if _, err := io.ReadFull(r, val); err != nil {
		return nil, err
	}

	return &Packet{Op: op, Key: key, Value: val}, nil
}

// EncodeFloats writes a length-prefixed float64 vector:
// [Count 4B] + [Float64 8B] * Count.
func EncodeFloats(vals []float64) []byte {
	buf := make([]byte, 4+8*len(vals))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(vals)))
	for i, v := range vals {
		binary.BigEndian.PutUint64(buf[4+8*i:], math.Float64bits(v))
	}
	return buf
}

// DecodeFloats reads one length-prefixed vector and returns the
// remaining bytes so callers can chain several vectors in one payload.
func DecodeFloats(b []byte) ([]float64, []byte, error) {
	if len(b) < 4 {
		return nil, nil, errors.New("truncated float vector")
	}
	n := int(binary.BigEndian.Uint32(b[0:4]))
	need := 4 + 8*n
	if len(b) < need {
		return nil, nil, errors.New("truncated float vector")
	}
	vals := make([]float64, n)
	for i := 0; i < n; i++ {
		vals[i] = math.Float64frombits(binary.BigEndian.Uint64(b[4+8*i:]))
	}
	return vals, b[need:], nil
}

// PredictRequest asks for a point prediction and interval bounds at
// each requested alpha. Key = features, Value = alphas + flags.
type PredictRequest struct {
	Features     []float64
	Alphas       []float64
	Ensemble     bool
	OptimizeBeta bool
}

func (r *PredictRequest) Marshal() (key, value []byte) {
	key = EncodeFloats(r.Features)
	value = EncodeFloats(r.Alphas)
	var flags byte
	if r.Ensemble {
		flags |= FlagEnsemble
	}
	if r.OptimizeBeta {
		flags |= FlagOptimizeBeta
	}
	value = append(value, flags)
	return key, value
}

func UnmarshalPredictRequest(key, value []byte) (*PredictRequest, error) {
	features, _, err := DecodeFloats(key)
	if err != nil {
		return nil, err
	}
	alphas, rest, err := DecodeFloats(value)
	if err != nil {
		return nil, err
	}
	if len(rest) < 1 {
		return nil, errors.New("missing flags byte")
	}
	flags := rest[0]
	return &PredictRequest{
		Features:     features,
		Alphas:       alphas,
		Ensemble:     flags&FlagEnsemble != 0,
		OptimizeBeta: flags&FlagOptimizeBeta != 0,
	}, nil
}

// PredictResponse carries the point prediction plus one (lower, upper)
// pair per requested alpha.
type PredictResponse struct {
	Point float64
	Lower []float64
	Upper []float64
}

func (r *PredictResponse) Marshal() []byte {
	buf := make([]byte, 8+4+16*len(r.Lower))
	binary.BigEndian.PutUint64(buf[0:8], math.Float64bits(r.Point))
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(r.Lower)))
	for i := range r.Lower {
		binary.BigEndian.PutUint64(buf[12+16*i:], math.Float64bits(r.Lower[i]))
		binary.BigEndian.PutUint64(buf[20+16*i:], math.Float64bits(r.Upper[i]))
	}
	return buf
}

func UnmarshalPredictResponse(b []byte) (*PredictResponse, error) {
	if len(b) < 12 {
		return nil, errors.New("truncated predict response")
	}
	resp := &PredictResponse{
		Point: math.Float64frombits(binary.BigEndian.Uint64(b[0:8])),
	}
	n := int(binary.BigEndian.Uint32(b[8:12]))
	if len(b) < 12+16*n {
		return nil, errors.New("truncated predict response")
	}
	resp.Lower = make([]float64, n)
	resp.Upper = make([]float64, n)
	for i := 0; i < n; i++ {
		resp.Lower[i] = math.Float64frombits(binary.BigEndian.Uint64(b[12+16*i:]))
		resp.Upper[i] = math.Float64frombits(binary.BigEndian.Uint64(b[20+16*i:]))
	}
	return resp, nil
}

// AdaptRequest feeds one realized observation back into the rolling
// calibration window and steps the alpha controller.
// Key = features, Value = realized y + gamma.
type AdaptRequest struct {
	Features []float64
	Realized float64
	Gamma    float64
}

func (r *AdaptRequest) Marshal() (key, value []byte) {
	key = EncodeFloats(r.Features)
	value = make([]byte, 16)
	binary.BigEndian.PutUint64(value[0:8], math.Float64bits(r.Realized))
	binary.BigEndian.PutUint64(value[8:16], math.Float64bits(r.Gamma))
	return key, value
}

func UnmarshalAdaptRequest(key, value []byte) (*AdaptRequest, error) {
	features, _, err := DecodeFloats(key)
	if err != nil {
		return nil, err
	}
	if len(value) < 16 {
		return nil, errors.New("truncated adapt request")
	}
	return &AdaptRequest{
		Features: features,
		Realized: math.Float64frombits(binary.BigEndian.Uint64(value[0:8])),
		Gamma:    math.Float64frombits(binary.BigEndian.Uint64(value[8:16])),
	}, nil
}

// StatsResponse mirrors the server-side prediction counters.
type StatsResponse struct {
	Predicts uint64
	Adapts   uint64
	Hits     uint64
	Misses   uint64
}

func (r *StatsResponse) Marshal() []byte {
	buf := make([]byte, 32)
	binary.BigEndian.PutUint64(buf[0:8], r.Predicts)
	binary.BigEndian.PutUint64(buf[8:16], r.Adapts)
	binary.BigEndian.PutUint64(buf[16:24], r.Hits)
	binary.BigEndian.PutUint64(buf[24:32], r.Misses)
	return buf
}

func UnmarshalStatsResponse(b []byte) (*StatsResponse, error) {
	if len(b) < 32 {
		return nil, errors.New("truncated stats response")
	}
	return &StatsResponse{
		Predicts: binary.BigEndian.Uint64(b[0:8]),
		Adapts:   binary.BigEndian.Uint64(b[8:16]),
		Hits:     binary.BigEndian.Uint64(b[16:24]),
		Misses:   binary.BigEndian.Uint64(b[24:32]),
	}, nil
}
