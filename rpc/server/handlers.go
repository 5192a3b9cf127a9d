package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ValentinKolb/dShard/rpc/common"
	"github.com/VictoriaMetrics/metrics"
)

var errNoShardID = errors.New("no shard id provided")

// parseShardParam reads the shardId query parameter. Missing, empty and non integer values are rejected.
func parseShardParam(r *http.Request) (int, error) {
	values, ok := r.URL.Query()[common.ShardIDParam]
	if !ok || len(values) == 0 {
		log.Warningf("no shard specified for %s", r.URL.Path)
		return 0, errNoShardID
	}
	if values[0] == "" {
		log.Warningf("no shard value specified for shardId in %s", r.URL.Path)
		return 0, errors.New("empty shard id provided")
	}
	shardID, err := strconv.Atoi(values[0])
	if err != nil {
		log.Errorf("invalid shard id provided: %v", err)
		return 0, fmt.Errorf("invalid shard id provided: %s", values[0])
	}
	return shardID, nil
}

// write encodes v as json with the given status code
func (s *AdminServer) write(w http.ResponseWriter, status int, v any) {
	data, err := s.codec.Serialize(v)
	if err != nil {
		http.Error(w, "failed to serialize response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		log.Warningf("failed to write response: %v", err)
	}
}

func (s *AdminServer) writeError(w http.ResponseWriter, status int, err error) {
	s.write(w, status, common.ErrorResponse{Error: err.Error()})
}

// --------------------------------------------------------------------------
// Handlers
// --------------------------------------------------------------------------

// handleTask runs POST /tasks/{blacklist,unblacklist}?shardId=N.
// Unknown shard ids are accepted and ignored by the manager.
func (s *AdminServer) handleTask(w http.ResponseWriter, r *http.Request) {
	task := r.PathValue("task")
	manager := s.bundle.Manager()

	var run func(int) error
	switch task {
	case common.TaskBlacklist:
		run = manager.BlacklistShard
	case common.TaskUnblacklist:
		run = manager.UnblacklistShard
	default:
		s.writeError(w, http.StatusNotFound, fmt.Errorf("unknown task %q", task))
		return
	}

	shardID, err := parseShardParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := run(shardID); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	blacklisted, err := manager.IsBlacklisted(shardID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	log.Infof("task %s finished for shard %d", task, shardID)
	s.write(w, http.StatusOK, common.TaskResponse{Task: task, ShardID: shardID, Blacklisted: blacklisted})
}

// handleHealth runs all shard checks. The status is 200 if all shards are healthy and 500 otherwise.
func (s *AdminServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	naming := s.bundle.Naming()
	resp := common.HealthResponse{Healthy: true, Shards: make(map[string]common.ShardHealth)}

	for shardID, err := range s.bundle.Health().Results() {
		h := common.ShardHealth{ShardID: shardID, Healthy: err == nil}
		if err != nil {
			h.Message = err.Error()
			resp.Healthy = false
		}
		resp.Shards[naming.ShardName(shardID)] = h
	}

	status := http.StatusOK
	if !resp.Healthy {
		status = http.StatusInternalServerError
	}
	s.write(w, status, resp)
}

// handleShards lists the bucket ranges, blacklist flags and table sizes of all shards.
func (s *AdminServer) handleShards(w http.ResponseWriter, _ *http.Request) {
	manager := s.bundle.Manager()
	naming := s.bundle.Naming()
	backends := s.bundle.Backends()

	resp := common.ShardsResponse{
		Namespace:  naming.Namespace(),
		Policy:     manager.Policy().Name,
		NumBuckets: manager.NumBuckets(),
	}
	for _, rng := range manager.Ranges() {
		blacklisted, err := manager.IsBlacklisted(rng.Shard)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		resp.Shards = append(resp.Shards, common.ShardInfo{
			ID:          rng.Shard,
			Name:        naming.ShardName(rng.Shard),
			FirstBucket: rng.Start,
			LastBucket:  rng.End,
			Blacklisted: blacklisted,
			Rows:        backends[rng.Shard].GetInfo().Tables,
		})
	}
	s.write(w, http.StatusOK, resp)
}

// handleMetrics writes the process metrics followed by the metrics of the bundle.
func (s *AdminServer) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	metrics.WritePrometheus(w, true)
	s.bundle.WriteMetrics(w)
}
