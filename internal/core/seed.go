package core

import (
	"bloodsync/pkg/domain"
	"context"
	"time"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

// SampleDonors returns the demo donor roster loaded by the seed command.
func SampleDonors() []Donor {
	donor := func(id, name string, age int, group BloodGroup, weight float64, city, state, pincode string, total int, last *time.Time) Donor {
		return Donor{
			Base:           domain.Base{ID: id},
			Name:           name,
			Age:            age,
			BloodGroup:     group,
			WeightKg:       weight,
			City:           city,
			State:          state,
			Pincode:        pincode,
			Available:      true,
			Status:         domain.DonorStatusActive,
			TotalDonations: total,
			LastDonation:   last,
		}
	}
	return []Donor{
		donor("DON-A1B2C3D4", "Rahul Sharma", 28, domain.OPositive, 70, "Mumbai", "Maharashtra", "400001", 5, date(2024, time.December, 1)),
		donor("DON-E5F6G7H8", "Priya Patel", 32, domain.APositive, 58, "Delhi", "Delhi", "110001", 3, date(2025, time.January, 10)),
		donor("DON-A2B3C4D5", "Anjali Gupta", 26, domain.ANegative, 55, "Mumbai", "Maharashtra", "400002", 2, nil),
		donor("DON-I9J0K1L2", "Amit Kumar", 25, domain.BNegative, 72, "Bangalore", "Karnataka", "560001", 2, nil),
		donor("DON-M3N4O5P6", "Sneha Gupta", 29, domain.ONegative, 55, "Chennai", "Tamil Nadu", "600001", 8, date(2025, time.January, 15)),
		donor("DON-Q7R8S9T0", "Vikram Singh", 35, domain.ABPositive, 80, "Pune", "Maharashtra", "411001", 4, date(2024, time.November, 20)),
	}
}

// SeedSampleDonors stores the demo donors that are not present yet and
// returns how many were added.
func (s *Service) SeedSampleDonors(ctx context.Context) (int, error) {
	added := 0
	err := s.run(ctx, opSeedDonors, func(ctx context.Context) (string, error) {
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			view := tx.Snapshot()
			for _, d := range SampleDonors() {
				if _, ok := view.FindDonor(d.ID); ok {
					continue
				}
				if _, err := tx.CreateDonor(d); err != nil {
					return err
				}
				added++
			}
			return nil
		})
		return "", err
	})
	return added, err
}
