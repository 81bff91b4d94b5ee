package payment

import (
	"github.com/clinvia/clinica-server/cmd/models"
)

// Fallback multipliers applied to the base price when a tier has no
// explicit price configured on the appointment type.
const (
	publicInsurerFactor  = 0.70
	privateInsurerFactor = 0.84
)

type PricingSnapshot struct {
	OriginalPrice        float64
	FinalPrice           float64
	DiscountAmount       float64
	DiscountPercent      float64
	InsuranceTier        string
	RequiresVerification bool
}

// ResolvePricing computes the charge for an appointment type under the
// patient's declared insurance tier. An unset tier is treated as
// self-pay. Verification is required the first time an insured patient
// books; once a patient has completed the in-person document check every
// later appointment skips it.
func ResolvePricing(apptType *models.AppointmentType, tier string, patientVerified bool) PricingSnapshot {
	if tier == "" {
		tier = models.TierSelfPay
	}

	snapshot := PricingSnapshot{
		OriginalPrice: apptType.BasePrice,
		InsuranceTier: tier,
	}

	switch tier {
	case models.TierPublicInsurer:
		snapshot.FinalPrice = apptType.PricePublic
		if snapshot.FinalPrice == 0 {
			snapshot.FinalPrice = apptType.BasePrice * publicInsurerFactor
		}
		snapshot.DiscountPercent = 30
	case models.TierPrivateInsurer:
		snapshot.FinalPrice = apptType.PricePrivate
		if snapshot.FinalPrice == 0 {
			snapshot.FinalPrice = apptType.BasePrice * privateInsurerFactor
		}
		snapshot.DiscountPercent = 16
	default:
		snapshot.InsuranceTier = models.TierSelfPay
		snapshot.FinalPrice = apptType.PriceSelfPay
		if snapshot.FinalPrice == 0 {
			snapshot.FinalPrice = apptType.BasePrice
		}
	}

	snapshot.DiscountAmount = snapshot.OriginalPrice - snapshot.FinalPrice
	snapshot.RequiresVerification = snapshot.InsuranceTier != models.TierSelfPay && !patientVerified

	return snapshot
}
