// Package mocks provides test doubles for ports interfaces.
//
// These mocks are simple, thread-safe, in-memory implementations suitable for
// unit testing. Each mock provides:
//
//   - Default behavior that returns reasonable test values
//   - Callback functions (xxxFn) for customizing behavior per test
//   - Helper methods for setting state directly
//
// # Usage Example
//
//	func TestBatch(t *testing.T) {
//		credits := mocks.NewCreditLedger()
//		credits.SetBalance("u1", decimal.NewFromInt(5))
//
//		orch := batch.New(deps)
//		// ... test orchestrator behavior
//	}
//
// # Available Mocks
//
//   - TickerDirectory: implements ports.TickerDirectory
//   - CreditLedger: implements ports.CreditLedger
//   - MarketCalendar: implements ports.MarketCalendar
//   - AnalysisRepository: implements ports.AnalysisRepository
package mocks
