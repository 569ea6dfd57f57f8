package store

import (
	"io"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxapi "github.com/influxdata/influxdb-client-go/v2/api"
)

type MetricsService interface {
	StoreHit(status string, insertType string, count int)
	SweepResult(kind string, processed int, failed int)
	CacheSize(cacheName string, c *lru.Cache, total int)
	io.Closer
}

type InfluxOpts struct {
	Enabled      bool   `yaml:"enabled"`
	ServUrl      string `yaml:"server-url"`
	AuthToken    string `yaml:"auth-token"`
	Organisation string `yaml:"organisation"`
	Bucket       string `yaml:"bucket"`
	Interval     int    `yaml:"interval"` // in seconds
}

type influxService struct {
	client       influxdb2.Client
	api          influxapi.WriteAPI
	done         chan bool
	ticker       *time.Ticker
	storeHits    map[storeHitTuple]int
	sweepResults map[string]sweepInfo
	cacheSize    map[string]cacheInfo
	m            *sync.Mutex
}

type storeHitTuple struct {
	status     string
	insertType string
}

type sweepInfo struct {
	processed int
	failed    int
}

type cacheInfo struct {
	cur   int
	total int
}

func (ifs *influxService) StoreHit(status string, insertType string, count int) {
	ifs.m.Lock()
	defer ifs.m.Unlock()

	t := storeHitTuple{status, insertType}
	ifs.storeHits[t] += count
}

func (ifs *influxService) SweepResult(kind string, processed int, failed int) {
	ifs.m.Lock()
	defer ifs.m.Unlock()

	cur := ifs.sweepResults[kind]
	cur.processed += processed
	cur.failed += failed
	ifs.sweepResults[kind] = cur
}

func (ifs *influxService) CacheSize(cacheName string, c *lru.Cache, total int) {
	ifs.m.Lock()
	defer ifs.m.Unlock()

	ifs.cacheSize[cacheName] = cacheInfo{c.Len(), total}
}

func (ifs *influxService) Close() error {
	ifs.done <- true
	ifs.ticker.Stop()
	ifs.client.Close()
	return nil
}

func (ifs *influxService) write() {
	ifs.m.Lock()
	defer ifs.m.Unlock()

	for tuple, count := range ifs.storeHits {
		tags := map[string]string{
			"status": tuple.status,
			"type":   tuple.insertType,
		}
		fields := map[string]interface{}{
			"count": count,
		}
		p := influxdb2.NewPoint("store-hits", tags, fields, time.Now())
		ifs.api.WritePoint(p)
	}

	for kind, info := range ifs.sweepResults {
		tags := map[string]string{
			"kind": kind,
		}
		fields := map[string]interface{}{
			"processed": info.processed,
			"failed":    info.failed,
		}
		p := influxdb2.NewPoint("sweeps", tags, fields, time.Now())
		ifs.api.WritePoint(p)
	}

	for cacheName, info := range ifs.cacheSize {
		tags := map[string]string{
			"cacheName": cacheName,
		}
		perc := float64(info.cur) / float64(info.total) * float64(100)
		fields := map[string]interface{}{
			"perc":  perc,
			"cur":   info.cur,
			"total": info.total,
		}
		p := influxdb2.NewPoint("cache", tags, fields, time.Now())
		ifs.api.WritePoint(p)
	}

	ifs.storeHits = map[storeHitTuple]int{}
	ifs.sweepResults = map[string]sweepInfo{}
	ifs.cacheSize = map[string]cacheInfo{}
}

// service that is being used when influxdb is disabled
type disabledService struct{}

func (ds *disabledService) StoreHit(status string, insertType string, count int) {}

func (ds *disabledService) SweepResult(kind string, processed int, failed int) {}

func (ds *disabledService) CacheSize(cacheName string, c *lru.Cache, total int) {}

func (ds *disabledService) Close() error {
	return nil
}

func NewMetricsService(opts InfluxOpts) MetricsService {
	if !opts.Enabled {
		return &disabledService{}
	}

	client := influxdb2.NewClient(opts.ServUrl, opts.AuthToken)
	api := client.WriteAPI(opts.Organisation, opts.Bucket)

	ifs := influxService{
		client:       client,
		api:          api,
		done:         make(chan bool),
		ticker:       time.NewTicker(time.Duration(opts.Interval) * time.Second),
		storeHits:    map[storeHitTuple]int{},
		sweepResults: map[string]sweepInfo{},
		cacheSize:    map[string]cacheInfo{},
		m:            &sync.Mutex{},
	}

	go func() {
		for {
			select {
			case <-ifs.done:
				return
			case <-ifs.ticker.C:
				ifs.write()
			}
		}
	}()

	return &ifs
}
