//go:build integration

package integration

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/pageguard/pageguard/internal/domain"
	"github.com/pageguard/pageguard/internal/infra"
	"github.com/pageguard/pageguard/internal/protection"
	"github.com/pageguard/pageguard/internal/usecase"
	"github.com/pageguard/pageguard/test/fixtures"
)

var _ = Describe("Guarded page lifecycle", func() {
	var (
		page    *fixtures.FakePage
		journal *infra.SQLiteJournal
		guard   *usecase.Guard
		cancel  context.CancelFunc
		done    chan error
	)

	newGuard := func(cfg domain.ProtectionConfig) *usecase.Guard {
		return usecase.NewGuard(page, journal, nil, nil, usecase.GuardOptions{
			Protection:       cfg,
			Watermark:        domain.WatermarkSpec{Enabled: true, Opacity: 0.08},
			Origin:           "pageguard",
			Locale:           "en",
			PollInterval:     10 * time.Millisecond,
			ReassertInterval: 10 * time.Millisecond,
		}, zap.NewNop())
	}

	start := func() {
		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan error, 1)
		go func() { done <- guard.Run(ctx) }()
	}

	stop := func() {
		cancel()
		Eventually(done, time.Second).Should(Receive(BeNil()))
	}

	BeforeEach(func() {
		page = fixtures.NewFakePage("https://example.test/report", "Quarterly Report")

		var err error
		journal, err = infra.OpenJournal(GinkgoT().TempDir() + "/events.db")
		Expect(err).NotTo(HaveOccurred())

		guard = newGuard(domain.DefaultProtectionConfig())
	})

	AfterEach(func() {
		Expect(journal.Close()).To(Succeed())
	})

	Describe("activation", func() {
		It("installs one script per enabled suppression and the report binding", func() {
			start()
			defer stop()

			Eventually(page.ScriptCount, time.Second).Should(Equal(3))
			Expect(page.BindingCount()).To(Equal(1))
			Expect(page.HasScriptContaining("contextmenu")).To(BeTrue())
			Expect(page.HasScriptContaining("keydown")).To(BeTrue())
			Expect(page.HasScriptContaining("beforeprint")).To(BeTrue())
		})

		It("renders the watermark with the page title and origin", func() {
			start()
			defer stop()

			Eventually(func() int {
				return page.EvalsContaining("Quarterly Report · pageguard")
			}, time.Second).Should(BeNumerically(">", 0))
		})
	})

	Describe("suppression reports", func() {
		It("journals each suppressed action", func() {
			start()
			defer stop()

			Eventually(page.BindingCount, time.Second).Should(Equal(1))
			Expect(page.Report(protection.ReportBinding,
				`{"kind":"keycombo","detail":"Ctrl+Shift+I"}`)).To(BeTrue())

			Eventually(func() string {
				events, err := journal.Recent(context.Background(), 10)
				Expect(err).NotTo(HaveOccurred())
				for _, ev := range events {
					if ev.Kind == domain.EventSuppression {
						return ev.Detail
					}
				}
				return ""
			}, time.Second).Should(Equal("keycombo Ctrl+Shift+I"))
		})
	})

	Describe("devtools detection", func() {
		It("obfuscates on open and restores on close", func() {
			start()
			defer stop()

			Eventually(page.ScriptCount, time.Second).Should(Equal(3))

			page.SetWindowDelta(400)
			Eventually(func() int {
				return page.EvalsContaining("blur(8px)")
			}, time.Second).Should(Equal(1))

			page.SetWindowDelta(0)
			Eventually(func() int {
				return page.EvalsContaining("style.filter = ''")
			}, time.Second).Should(BeNumerically(">", 0))
		})
	})

	Describe("deactivation", func() {
		It("leaves the page without scripts, bindings or overlay", func() {
			start()

			Eventually(page.ScriptCount, time.Second).Should(Equal(3))
			stop()

			Expect(page.ScriptCount()).To(BeZero())
			Expect(page.BindingCount()).To(BeZero())
			Expect(page.EvalsContaining("if (el) el.remove()")).To(BeNumerically(">", 0))

			events, err := journal.Recent(context.Background(), 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(events[0].Detail).To(Equal("session deactivated"))
		})

		It("ignores reports arriving after teardown", func() {
			start()
			Eventually(page.BindingCount, time.Second).Should(Equal(1))
			stop()

			Expect(page.Report(protection.ReportBinding,
				`{"kind":"contextmenu","detail":""}`)).To(BeFalse())
		})
	})

	Describe("partial configuration", func() {
		It("installs nothing for disabled suppressions", func() {
			cfg := domain.DefaultProtectionConfig()
			cfg.DisableKeyboardShortcuts = false
			cfg.DisablePrint = false
			cfg.DisableDevTools = false
			guard = newGuard(cfg)

			start()
			defer stop()

			Eventually(page.ScriptCount, time.Second).Should(Equal(1))
			Expect(page.HasScriptContaining("contextmenu")).To(BeTrue())
			Expect(page.HasScriptContaining("keydown")).To(BeFalse())
		})
	})
})
