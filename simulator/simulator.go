// Package simulator drives a running thread board with synthetic users who
// post, reply and read.
package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"threadboard/internal/database"
	"threadboard/internal/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type SimConfig struct {
	NumUsers         int
	NumWorkers       int
	SimulationTime   time.Duration
	TickInterval     time.Duration
	PostFrequency    float64 // posts per user per hour
	CommentFrequency float64 // comments per user per hour
	ReadFrequency    float64 // page reads per user per hour
	ZipfS            float64
	EngineURL        string
}

type SimulationStats struct {
	mu              sync.RWMutex
	StartTime       time.Time
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	CacheHits       int64
	AverageLatency  time.Duration
	TotalPosts      int
	TotalComments   int
	TotalReads      int
}

// SimulatedUser is a seeded user and what it has written.
type SimulatedUser struct {
	ID       uuid.UUID
	Username string
	Posts    []uuid.UUID
	Comments []uuid.UUID
}

type Simulator struct {
	config  SimConfig
	stats   *SimulationStats
	store   database.Store
	users   []*SimulatedUser
	threads []uuid.UUID // known thread ids, most recently seen first
	client  *http.Client
	rng     *rand.Rand
	mu      sync.RWMutex
}

// NewSimulator creates a simulator. Users are seeded straight into store,
// which must be the store the server reads from.
func NewSimulator(config SimConfig, store database.Store) *Simulator {
	if config.NumWorkers <= 0 {
		config.NumWorkers = 5
	}
	if config.TickInterval <= 0 {
		config.TickInterval = 500 * time.Millisecond
	}
	if config.ZipfS <= 1 {
		config.ZipfS = 1.07
	}
	return &Simulator{
		config: config,
		stats:  &SimulationStats{StartTime: time.Now()},
		store:  store,
		client: &http.Client{Timeout: 10 * time.Second},
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Simulator) Run(ctx context.Context) error {
	log.Info("Starting simulation")

	if err := s.SeedUsers(ctx); err != nil {
		return fmt.Errorf("seeding users failed: %w", err)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.simulateActivities(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.collectMetrics(ctx)
	}()

	wg.Wait()
	return nil
}

// SeedUsers writes NumUsers users to the store. The thread API has no way to
// register users, so they are created directly.
func (s *Simulator) SeedUsers(ctx context.Context) error {
	users := make([]*SimulatedUser, 0, s.config.NumUsers)
	for i := 0; i < s.config.NumUsers; i++ {
		user := &models.User{
			ID:        uuid.New(),
			Username:  fmt.Sprintf("user_%d", i),
			Name:      fmt.Sprintf("User %d", i),
			Image:     fmt.Sprintf("https://avatars.test/user_%d.png", i),
			Bio:       fmt.Sprintf("Simulated user %d", i),
			CreatedAt: time.Now().UTC(),
		}
		if err := s.store.SaveUser(ctx, user); err != nil {
			return fmt.Errorf("failed to save user %s: %w", user.Username, err)
		}
		users = append(users, &SimulatedUser{ID: user.ID, Username: user.Username})
	}

	s.mu.Lock()
	s.users = users
	s.mu.Unlock()

	log.WithField("users", len(users)).Info("Seeded users")
	return nil
}

func (s *Simulator) simulateActivities(ctx context.Context) {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	jobs := make(chan *SimulatedUser, s.config.NumUsers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.NumWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for user := range jobs {
				if err := s.Step(ctx, user); err != nil {
					log.WithFields(log.Fields{
						"worker": workerID,
						"user":   user.Username,
					}).WithError(err).Debug("Activity failed")
				}
			}
		}(i)
	}

	defer func() {
		close(jobs)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			users := s.users
			s.mu.RUnlock()
			for _, user := range users {
				select {
				case jobs <- user:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// Step lets one user act at most once, with each action's chance scaled from
// its hourly frequency to the tick interval.
func (s *Simulator) Step(ctx context.Context, user *SimulatedUser) error {
	perTick := s.config.TickInterval.Hours()

	s.mu.Lock()
	roll := s.rng.Float64()
	s.mu.Unlock()

	post := s.config.PostFrequency * perTick
	comment := post + s.config.CommentFrequency*perTick
	read := comment + s.config.ReadFrequency*perTick

	switch {
	case roll < post:
		return s.CreatePost(ctx, user)
	case roll < comment:
		target, ok := s.pickThread()
		if !ok {
			return s.ReadPage(ctx, 1)
		}
		return s.AddComment(ctx, user, target)
	case roll < read:
		return s.ReadPage(ctx, s.getZipfNumber(5))
	}
	return nil
}

// CreatePost opens a new root thread as user.
func (s *Simulator) CreatePost(ctx context.Context, user *SimulatedUser) error {
	data := map[string]interface{}{
		"text":   fmt.Sprintf("**%s** posted at %s", user.Username, time.Now().Format(time.RFC3339)),
		"author": user.ID.String(),
	}
	if _, _, err := s.makeRequest(ctx, http.MethodPost, "/threads", data); err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}

	s.stats.mu.Lock()
	s.stats.TotalPosts++
	s.stats.mu.Unlock()
	return nil
}

// AddComment replies to threadID as user.
func (s *Simulator) AddComment(ctx context.Context, user *SimulatedUser, threadID uuid.UUID) error {
	data := map[string]interface{}{
		"text":   fmt.Sprintf("Reply from %s", user.Username),
		"userId": user.ID.String(),
	}
	endpoint := fmt.Sprintf("/threads/%s/comments", threadID)
	if _, _, err := s.makeRequest(ctx, http.MethodPost, endpoint, data); err != nil {
		return fmt.Errorf("failed to add comment: %w", err)
	}

	s.stats.mu.Lock()
	s.stats.TotalComments++
	s.stats.mu.Unlock()
	return nil
}

// ReadPage fetches one listing page and remembers the threads on it.
func (s *Simulator) ReadPage(ctx context.Context, page int) error {
	body, cacheStatus, err := s.makeRequest(ctx, http.MethodGet, fmt.Sprintf("/threads?page=%d", page), nil)
	if err != nil {
		return fmt.Errorf("failed to read page %d: %w", page, err)
	}

	var resp struct {
		Posts []struct {
			ID       uuid.UUID   `json:"id"`
			ChildIDs []uuid.UUID `json:"childIds"`
		} `json:"posts"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to parse page %d: %w", page, err)
	}

	seen := make([]uuid.UUID, 0, len(resp.Posts))
	for _, post := range resp.Posts {
		seen = append(seen, post.ID)
		seen = append(seen, post.ChildIDs...)
	}
	s.rememberThreads(seen)

	s.stats.mu.Lock()
	s.stats.TotalReads++
	if cacheStatus == "HIT" {
		s.stats.CacheHits++
	}
	s.stats.mu.Unlock()
	return nil
}

func (s *Simulator) rememberThreads(ids []uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	known := make(map[uuid.UUID]bool, len(ids))
	merged := make([]uuid.UUID, 0, len(ids)+len(s.threads))
	for _, id := range append(ids, s.threads...) {
		if known[id] {
			continue
		}
		known[id] = true
		merged = append(merged, id)
	}
	s.threads = merged
}

// pickThread favours recently seen threads.
func (s *Simulator) pickThread() (uuid.UUID, bool) {
	s.mu.RLock()
	n := len(s.threads)
	s.mu.RUnlock()
	if n == 0 {
		return uuid.Nil, false
	}

	idx := s.getZipfNumber(n) - 1

	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx >= len(s.threads) {
		idx = len(s.threads) - 1
	}
	return s.threads[idx], true
}

// getZipfNumber returns a value in [1, max], skewed towards 1.
func (s *Simulator) getZipfNumber(max int) int {
	if max <= 1 {
		return 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	zipf := rand.NewZipf(s.rng, s.config.ZipfS, 1, uint64(max-1))
	return int(zipf.Uint64()) + 1
}

// makeRequest sends data as JSON and returns the body and X-Cache header.
func (s *Simulator) makeRequest(ctx context.Context, method, endpoint string, data interface{}) ([]byte, string, error) {
	var body []byte
	if data != nil {
		var err error
		body, err = json.Marshal(data)
		if err != nil {
			return nil, "", err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.EngineURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.recordRequestMetrics(start, err)
		return nil, "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err == nil && resp.StatusCode >= 400 {
		err = fmt.Errorf("request failed with status %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}
	s.recordRequestMetrics(start, err)
	if err != nil {
		return nil, "", err
	}
	return respBody, resp.Header.Get("X-Cache"), nil
}

func (s *Simulator) recordRequestMetrics(start time.Time, err error) {
	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()

	latency := time.Since(start)
	s.stats.TotalRequests++

	if err != nil {
		s.stats.FailedRequests++
	} else {
		s.stats.SuccessRequests++
	}

	totalLatency := s.stats.AverageLatency * time.Duration(s.stats.TotalRequests-1)
	s.stats.AverageLatency = (totalLatency + latency) / time.Duration(s.stats.TotalRequests)
}

func (s *Simulator) collectMetrics(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := s.GetMetrics()
			log.WithFields(log.Fields{
				"requests_per_sec": fmt.Sprintf("%.2f", m.RequestsPerSecond),
				"avg_latency":      m.AverageLatency.String(),
				"posts":            m.TotalPosts,
				"comments":         m.TotalComments,
				"reads":            m.TotalReads,
				"cache_hits":       m.CacheHits,
				"errors":           m.ErrorCount,
			}).Info("Simulation metrics")
		}
	}
}

// SimulationMetrics holds the metrics of the simulation
type SimulationMetrics struct {
	TotalUsers        int
	KnownThreads      int
	TotalPosts        int
	TotalComments     int
	TotalReads        int
	CacheHits         int
	AverageLatency    time.Duration
	ErrorCount        int
	RequestsPerSecond float64
}

// GetMetrics returns the current simulation metrics
func (s *Simulator) GetMetrics() SimulationMetrics {
	s.mu.RLock()
	users, known := len(s.users), len(s.threads)
	s.mu.RUnlock()

	s.stats.mu.RLock()
	defer s.stats.mu.RUnlock()

	elapsed := time.Since(s.stats.StartTime)

	return SimulationMetrics{
		TotalUsers:        users,
		KnownThreads:      known,
		TotalPosts:        s.stats.TotalPosts,
		TotalComments:     s.stats.TotalComments,
		TotalReads:        s.stats.TotalReads,
		CacheHits:         int(s.stats.CacheHits),
		AverageLatency:    s.stats.AverageLatency,
		ErrorCount:        int(s.stats.FailedRequests),
		RequestsPerSecond: float64(s.stats.TotalRequests) / elapsed.Seconds(),
	}
}
