// Package mocks provides mock implementations of the crawl pipeline ports.
//
// This package uses go.uber.org/mock (gomock) for the store, persistence and lock ports.
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	store := mocks.NewMockRecordStore(ctrl)
//	store.EXPECT().Upsert(gomock.Any(), gomock.Any(), gomock.Any()).Return(model.UpsertResult{Inserted: 1}, nil)
//
// The automation subpackage holds hand-written scripted doubles for browser sessions.
package mocks

// Generate mock for RecordStore interface from internal/core package.
// This creates MockRecordStore with methods: Get, GetByFingerprints, LatestByNaturalKeys, Upsert
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=record_store_mock.go github.com/target/mmk-crawlsync/internal/core RecordStore

// Generate mock for JobPersistence interface from internal/core package.
// This creates MockJobPersistence with methods: UpdateStatus, GetJob
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_persistence_mock.go github.com/target/mmk-crawlsync/internal/core JobPersistence

// Generate mock for TargetLocker interface from internal/core package.
// This creates MockTargetLocker with methods: Acquire, Release
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=target_locker_mock.go github.com/target/mmk-crawlsync/internal/core TargetLocker
