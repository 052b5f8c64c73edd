package network

import (
	"io"
	"log"
	"net"

	"conformal/pkg/common"
	"conformal/pkg/monitor"
	"conformal/pkg/protocol"
	"conformal/pkg/regression"
)

// TCPServer serves binary predict/adapt requests against a fitted
// time-series regressor. Adaptation steps are serialized by the
// regressor itself, so outcomes recorded across connections stay
// in arrival order per connection.
type TCPServer struct {
	reg   *regression.TimeSeriesRegressor
	stats *monitor.PredictionStats
	alpha float64
}

func NewTCPServer(reg *regression.TimeSeriesRegressor, stats *monitor.PredictionStats, alpha float64) *TCPServer {
	return &TCPServer{reg: reg, stats: stats, alpha: alpha}
}

func (s *TCPServer) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Printf("[TCP] Listening on %s (Binary Protocol)", addr)

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Printf("[TCP] Accept error: %v", err)
			continue
		}
		go s.handleConn(conn)
	}
}

func (s *TCPServer) handleConn(conn net.Conn) {
	defer conn.Close()

	for {
		req, err := protocol.Decode(conn)
		if err != nil {
			if err != io.EOF {
				log.Printf("[TCP] Decode error: %v", err)
			}
			return
		}

		switch req.Op {
		case protocol.OpPredict:
			s.handlePredict(conn, req)

		case protocol.OpAdapt:
			s.handleAdapt(conn, req)

		case protocol.OpStats:
			predicts, adapts, hits, misses := s.stats.Snapshot()
			resp := &protocol.StatsResponse{
				Predicts: predicts,
				Adapts:   adapts,
				Hits:     hits,
				Misses:   misses,
			}
			protocol.Encode(conn, protocol.RespVal, nil, resp.Marshal())

		default:
			protocol.Encode(conn, protocol.RespErr, nil, []byte("unknown op"))
		}
	}
}

func (s *TCPServer) handlePredict(conn net.Conn, req *protocol.Packet) {
	pr, err := protocol.UnmarshalPredictRequest(req.Key, req.Value)
	if err != nil {
		protocol.Encode(conn, protocol.RespErr, nil, []byte(err.Error()))
		return
	}

	x := common.Matrix{pr.Features}
	point, iv, err := s.reg.PredictIntervals(x, pr.Alphas, pr.Ensemble, pr.OptimizeBeta)
	if err != nil {
		protocol.Encode(conn, protocol.RespErr, nil, []byte(err.Error()))
		return
	}
	s.stats.RecordPredict()

	lower, upper := make([]float64, iv.NumAlphas()), make([]float64, iv.NumAlphas())
	for k := range pr.Alphas {
		lower[k], upper[k] = iv.Bounds(0, k)
	}
	resp := &protocol.PredictResponse{Point: point[0], Lower: lower, Upper: upper}
	protocol.Encode(conn, protocol.RespVal, nil, resp.Marshal())
}

func (s *TCPServer) handleAdapt(conn net.Conn, req *protocol.Packet) {
	ar, err := protocol.UnmarshalAdaptRequest(req.Key, req.Value)
	if err != nil {
		protocol.Encode(conn, protocol.RespErr, nil, []byte(err.Error()))
		return
	}

	x := common.Matrix{ar.Features}
	y := []float64{ar.Realized}

	// Coverage is judged against the interval in force before the
	// realized value is allowed to influence the window or the level.
	_, iv, err := s.reg.PredictIntervals(x, []float64{s.alpha}, true, false)
	if err != nil {
		protocol.Encode(conn, protocol.RespErr, nil, []byte(err.Error()))
		return
	}
	lo, hi := iv.Bounds(0, 0)
	s.stats.RecordOutcome(ar.Realized >= lo && ar.Realized <= hi)

	if err := s.reg.AdaptConformalInference(x, y, ar.Gamma); err != nil {
		protocol.Encode(conn, protocol.RespErr, nil, []byte(err.Error()))
		return
	}
	if err := s.reg.PartialFit(x, y); err != nil {
		protocol.Encode(conn, protocol.RespErr, nil, []byte(err.Error()))
		return
	}
	s.stats.RecordAdapt()
	protocol.Encode(conn, protocol.RespOK, nil, nil)
}
