package placement_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hsnlab/upsf-scm/internal/placement"
	"github.com/hsnlab/upsf-scm/internal/upsf"
	"github.com/hsnlab/upsf-scm/internal/upsf/memgateway"
)

var _ = Describe("Placement Engine", func() {
	var (
		ctx context.Context
		gw  *memgateway.Gateway
		eng *placement.Engine
	)

	BeforeEach(func() {
		ctx = context.Background()
		gw = memgateway.New()
		eng = placement.New(gw, placement.Defaults{}, logger)
	})

	Context("S1: single candidate", func() {
		It("places the session context onto the sole eligible shard", func() {
			gw.SeedSGUP(upsf.SGUP{Name: "A", SupportedServiceGroups: []string{"basic"}, MaxSessionCount: 100})
			gw.SeedShard(upsf.Shard{Name: "X", DesiredSGUP: "A", MaxSessionCount: 50})
			gw.SeedSessionContext(upsf.SessionContext{Name: "ctx1", RequiredServiceGroups: []string{"basic"}})

			outcome, err := eng.Place(ctx, mustGet(gw, ctx, "ctx1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(placement.OutcomePlaced))

			sc, err := gw.ListSessionContexts(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(sc).To(HaveLen(1))
			Expect(sc[0].DesiredShard).To(Equal("X"))

			shard, err := gw.GetShard(ctx, "X")
			Expect(err).NotTo(HaveOccurred())
			Expect(shard.AllocatedSessionCount).To(Equal(1))

			sgup, err := gw.GetSGUP(ctx, "A")
			Expect(err).NotTo(HaveOccurred())
			Expect(sgup.AllocatedSessionCount).To(Equal(1))
		})
	})

	Context("S2: load-based selection", func() {
		It("chooses the less loaded SGUP's shard", func() {
			gw.SeedSGUP(upsf.SGUP{Name: "A", SupportedServiceGroups: []string{"basic"}, MaxSessionCount: 100, AllocatedSessionCount: 90})
			gw.SeedSGUP(upsf.SGUP{Name: "B", SupportedServiceGroups: []string{"basic"}, MaxSessionCount: 100, AllocatedSessionCount: 10})
			gw.SeedShard(upsf.Shard{Name: "X", DesiredSGUP: "A", MaxSessionCount: 50})
			gw.SeedShard(upsf.Shard{Name: "Y", DesiredSGUP: "B", MaxSessionCount: 50})
			gw.SeedSessionContext(upsf.SessionContext{Name: "ctx1", RequiredServiceGroups: []string{"basic"}})

			outcome, err := eng.Place(ctx, mustGet(gw, ctx, "ctx1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(placement.OutcomePlaced))

			updated := mustGet(gw, ctx, "ctx1")
			Expect(updated.DesiredShard).To(Equal("Y"))
		})
	})

	Context("S3: capability filter", func() {
		It("ignores load and picks the shard whose SGUP satisfies the required groups", func() {
			gw.SeedSGUP(upsf.SGUP{Name: "A", SupportedServiceGroups: []string{"basic"}, MaxSessionCount: 100})
			gw.SeedSGUP(upsf.SGUP{Name: "B", SupportedServiceGroups: []string{"basic", "premium"}, MaxSessionCount: 100, AllocatedSessionCount: 80})
			gw.SeedShard(upsf.Shard{Name: "X", DesiredSGUP: "A", MaxSessionCount: 50})
			gw.SeedShard(upsf.Shard{Name: "Y", DesiredSGUP: "B", MaxSessionCount: 50})
			gw.SeedSessionContext(upsf.SessionContext{Name: "ctx1", RequiredServiceGroups: []string{"premium"}})

			outcome, err := eng.Place(ctx, mustGet(gw, ctx, "ctx1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(placement.OutcomePlaced))

			updated := mustGet(gw, ctx, "ctx1")
			Expect(updated.DesiredShard).To(Equal("Y"))
		})
	})

	Context("S4: full capacity", func() {
		It("leaves the session context untouched and reports infeasibility", func() {
			gw.SeedSGUP(upsf.SGUP{Name: "A", SupportedServiceGroups: []string{"basic"}, MaxSessionCount: 10, AllocatedSessionCount: 10})
			gw.SeedShard(upsf.Shard{Name: "X", DesiredSGUP: "A", MaxSessionCount: 50})
			gw.SeedSessionContext(upsf.SessionContext{Name: "ctx1", RequiredServiceGroups: []string{"basic"}})

			outcome, err := eng.Place(ctx, mustGet(gw, ctx, "ctx1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(placement.OutcomeNoSGUPCandid))

			updated := mustGet(gw, ctx, "ctx1")
			Expect(updated.DesiredShard).To(BeEmpty())
		})
	})

	Context("Invariant 2: already-placed contexts are never re-placed", func() {
		It("leaves desired_shard untouched on a second Place call", func() {
			gw.SeedSGUP(upsf.SGUP{Name: "A", SupportedServiceGroups: []string{"basic"}, MaxSessionCount: 100})
			gw.SeedShard(upsf.Shard{Name: "X", DesiredSGUP: "A", MaxSessionCount: 50})
			gw.SeedSessionContext(upsf.SessionContext{Name: "ctx1", RequiredServiceGroups: []string{"basic"}, DesiredShard: "X"})

			outcome, err := eng.Place(ctx, mustGet(gw, ctx, "ctx1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(placement.OutcomeShortCircuit))

			shard, err := gw.GetShard(ctx, "X")
			Expect(err).NotTo(HaveOccurred())
			Expect(shard.AllocatedSessionCount).To(Equal(0))
		})
	})

	Context("Invariant 3: chosen shard/SGUP pairing and capability superset hold", func() {
		It("commits a shard whose desired_sgup matches the chosen SGUP supporting a superset of the required groups", func() {
			gw.SeedSGUP(upsf.SGUP{Name: "A", SupportedServiceGroups: []string{"basic", "premium", "voice"}, MaxSessionCount: 100})
			gw.SeedShard(upsf.Shard{Name: "X", DesiredSGUP: "A", MaxSessionCount: 50})
			gw.SeedSessionContext(upsf.SessionContext{Name: "ctx1", RequiredServiceGroups: []string{"basic", "premium"}})

			outcome, err := eng.Place(ctx, mustGet(gw, ctx, "ctx1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(placement.OutcomePlaced))

			updated := mustGet(gw, ctx, "ctx1")
			shard, err := gw.GetShard(ctx, updated.DesiredShard)
			Expect(err).NotTo(HaveOccurred())
			Expect(shard.DesiredSGUP).To(Equal("A"))

			sgup, err := gw.GetSGUP(ctx, shard.DesiredSGUP)
			Expect(err).NotTo(HaveOccurred())
			Expect(sgup.SupportedServiceGroups).To(ContainElements("basic", "premium"))
		})
	})

	Context("Invariant 4: counters advance by exactly one per placement", func() {
		It("increments shard and SGUP allocation by one, and performs no write when infeasible", func() {
			gw.SeedSGUP(upsf.SGUP{Name: "A", SupportedServiceGroups: []string{"basic"}, MaxSessionCount: 100, AllocatedSessionCount: 4})
			gw.SeedShard(upsf.Shard{Name: "X", DesiredSGUP: "A", MaxSessionCount: 50, AllocatedSessionCount: 7})
			gw.SeedSessionContext(upsf.SessionContext{Name: "ctx1", RequiredServiceGroups: []string{"basic"}})

			_, err := eng.Place(ctx, mustGet(gw, ctx, "ctx1"))
			Expect(err).NotTo(HaveOccurred())

			shard, err := gw.GetShard(ctx, "X")
			Expect(err).NotTo(HaveOccurred())
			Expect(shard.AllocatedSessionCount).To(Equal(8))

			sgup, err := gw.GetSGUP(ctx, "A")
			Expect(err).NotTo(HaveOccurred())
			Expect(sgup.AllocatedSessionCount).To(Equal(5))

			// A second unrelated context with no eligible SGUP leaves counters alone.
			gw.SeedSessionContext(upsf.SessionContext{Name: "ctx2", RequiredServiceGroups: []string{"nonexistent"}})
			_, err = eng.Place(ctx, mustGet(gw, ctx, "ctx2"))
			Expect(err).NotTo(HaveOccurred())

			shard, err = gw.GetShard(ctx, "X")
			Expect(err).NotTo(HaveOccurred())
			Expect(shard.AllocatedSessionCount).To(Equal(8))
		})
	})

	Context("Step A: defaults-only commit when no shard exists", func() {
		It("fills configured defaults without touching desired_shard when no shard exists", func() {
			eng = placement.New(gw, placement.Defaults{RequiredQuality: 5, RequiredServiceGroups: []string{"basic"}}, logger)
			gw.SeedSessionContext(upsf.SessionContext{Name: "ctx1"})

			outcome, err := eng.Place(ctx, mustGet(gw, ctx, "ctx1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(placement.OutcomeDefaultsOnly))

			updated := mustGet(gw, ctx, "ctx1")
			Expect(updated.RequiredQuality).To(Equal(5))
			Expect(updated.RequiredServiceGroups).To(Equal([]string{"basic"}))
			Expect(updated.DesiredShard).To(BeEmpty())
		})
	})

	Context("Invariant 6: unreferenced SGUPs are never chosen", func() {
		It("ignores an SGUP with no shard pointing at it", func() {
			gw.SeedSGUP(upsf.SGUP{Name: "orphan", SupportedServiceGroups: []string{"basic"}, MaxSessionCount: 100})
			gw.SeedSGUP(upsf.SGUP{Name: "A", SupportedServiceGroups: []string{"basic"}, MaxSessionCount: 100})
			gw.SeedShard(upsf.Shard{Name: "X", DesiredSGUP: "A", MaxSessionCount: 50})
			gw.SeedSessionContext(upsf.SessionContext{Name: "ctx1", RequiredServiceGroups: []string{"basic"}})

			outcome, err := eng.Place(ctx, mustGet(gw, ctx, "ctx1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(placement.OutcomePlaced))

			updated := mustGet(gw, ctx, "ctx1")
			Expect(updated.DesiredShard).To(Equal("X"))

			orphan, err := gw.GetSGUP(ctx, "orphan")
			Expect(err).NotTo(HaveOccurred())
			Expect(orphan.AllocatedSessionCount).To(Equal(0))
		})
	})

	Context("deterministic tie-break", func() {
		It("prefers the lexicographically smaller name when load ratios tie", func() {
			gw.SeedSGUP(upsf.SGUP{Name: "B", SupportedServiceGroups: []string{"basic"}, MaxSessionCount: 100})
			gw.SeedSGUP(upsf.SGUP{Name: "A", SupportedServiceGroups: []string{"basic"}, MaxSessionCount: 100})
			gw.SeedShard(upsf.Shard{Name: "Y", DesiredSGUP: "B", MaxSessionCount: 50})
			gw.SeedShard(upsf.Shard{Name: "X", DesiredSGUP: "A", MaxSessionCount: 50})
			gw.SeedSessionContext(upsf.SessionContext{Name: "ctx1", RequiredServiceGroups: []string{"basic"}})

			outcome, err := eng.Place(ctx, mustGet(gw, ctx, "ctx1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(placement.OutcomePlaced))

			updated := mustGet(gw, ctx, "ctx1")
			Expect(updated.DesiredShard).To(Equal("X"))
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
	Fail("session context not found: " + name)
	return upsf.SessionContext{}
}
