package reconciler_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hsnlab/upsf-scm/internal/placement"
	"github.com/hsnlab/upsf-scm/internal/reconciler"
	"github.com/hsnlab/upsf-scm/internal/upsf"
	"github.com/hsnlab/upsf-scm/internal/upsf/memgateway"
)

// waitUntil polls cond every interval until it returns true or timeout
// elapses, at which point the spec fails.
func waitUntil(cond func() bool) {
	GinkgoHelper()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		if cond() {
			return
		}
		select {
		case <-ticker.C:
		case <-deadline.C:
			Fail("condition not met before timeout")
			return
		}
	}
}

var _ = Describe("Reconciler", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		gw     *memgateway.Gateway
		rec    *reconciler.Reconciler
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		gw = memgateway.New()
		eng := placement.New(gw, placement.Defaults{}, logger)
		rec = reconciler.New(gw, eng, logger)
		rec.ReconnectBackoff = 50 * time.Millisecond
	})

	AfterEach(func() {
		cancel()
	})

	Describe("Bootstrap", func() {
		It("places every unplaced session context exactly once", func() {
			gw.SeedSGUP(upsf.SGUP{Name: "A", SupportedServiceGroups: []string{"basic"}, MaxSessionCount: 100})
			gw.SeedShard(upsf.Shard{Name: "X", DesiredSGUP: "A", MaxSessionCount: 50})
			gw.SeedSessionContext(upsf.SessionContext{Name: "ctx1", RequiredServiceGroups: []string{"basic"}})

			Expect(rec.Bootstrap(ctx)).To(Succeed())

			all, err := gw.ListSessionContexts(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(1))
			Expect(all[0].DesiredShard).To(Equal("X"))
		})
	})

	Describe("S6: re-mapping on shard event", func() {
		It("re-maps unplaced contexts on a shard event without disturbing an already-placed one", func() {
			gw.SeedSGUP(upsf.SGUP{Name: "A", SupportedServiceGroups: []string{"basic"}, MaxSessionCount: 100})
			gw.SeedShard(upsf.Shard{Name: "X", DesiredSGUP: "A", MaxSessionCount: 50})
			gw.SeedSessionContext(upsf.SessionContext{Name: "ctx1", RequiredServiceGroups: []string{"basic"}})

			Expect(rec.Bootstrap(ctx)).To(Succeed())

			placedCtx1 := mustGet(gw, ctx, "ctx1")
			Expect(placedCtx1.DesiredShard).To(Equal("X"))

			go func() {
				defer GinkgoRecover()
				_ = rec.Run(ctx)
			}()

			// a new, still-unplaced context arrives after the watch loop
			// is up; it should get picked up by the next shard event.
			gw.SeedSessionContext(upsf.SessionContext{Name: "ctx2", RequiredServiceGroups: []string{"basic"}})

			// a shard event (any field change counts) triggers the re-map.
			allocated := 0
			Expect(gw.UpdateShard(ctx, upsf.ShardUpdate{Name: "X", AllocatedSessionCount: &allocated})).To(Succeed())

			waitUntil(func() bool {
				return mustGet(gw, ctx, "ctx2").DesiredShard == "X"
			})

			// ctx1 was never re-placed: its desired_shard is untouched.
			Expect(mustGet(gw, ctx, "ctx1").DesiredShard).To(Equal("X"))
		})
	})

	Describe("session-context-only events", func() {
		It("places a single newly created session context without a shard event", func() {
			gw.SeedSGUP(upsf.SGUP{Name: "A", SupportedServiceGroups: []string{"basic"}, MaxSessionCount: 100})
			gw.SeedShard(upsf.Shard{Name: "X", DesiredSGUP: "A", MaxSessionCount: 50})

			go func() {
				defer GinkgoRecover()
				_ = rec.Run(ctx)
			}()

			_, err := gw.CreateSessionContext(ctx, upsf.SessionContext{Name: "ctx1", RequiredServiceGroups: []string{"basic"}})
			Expect(err).NotTo(HaveOccurred())

			waitUntil(func() bool {
				return mustGet(gw, ctx, "ctx1").DesiredShard == "X"
			})
		})
	})
})

func mustGet(gw *memgateway.Gateway, ctx context.Context, name string) upsf.SessionContext {
	GinkgoHelper()
	all, err := gw.ListSessionContexts(ctx)
	Expect(err).NotTo(HaveOccurred())
	for _, sc := range all {
		if sc.Name == name {
			return sc
		}
	}
	return upsf.SessionContext{}
}
