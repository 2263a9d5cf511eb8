// Package mocks provides mock implementations for testing the jobforge services.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the
// service-layer interfaces. The mocks are generated with go:generate directives and
// provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	defs := mocks.NewMockDefinitionRepository(ctrl)
//	defs.EXPECT().GetByID(gomock.Any(), "id").Return(def, nil)
package mocks

// Generate mocks for every interface in internal/service/interfaces.go:
// DefinitionRepository, ScheduleRepository, RunRepository, LogStore,
// HookRepository, HookCache.
//go:generate go run go.uber.org/mock/mockgen -source=../service/interfaces.go -destination=service_mocks.go -package=mocks
