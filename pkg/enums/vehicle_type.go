package enums

import "fmt"

// VehicleType describes a driver's vehicle.
type VehicleType string

const (
	VehicleTypeBicycle    VehicleType = "bicycle"
	VehicleTypeMotorcycle VehicleType = "motorcycle"
	VehicleTypeCar        VehicleType = "car"
	VehicleTypeVan        VehicleType = "van"
)

var validVehicleTypes = []VehicleType{
	VehicleTypeBicycle,
	VehicleTypeMotorcycle,
	VehicleTypeCar,
	VehicleTypeVan,
}

func (v VehicleType) IsValid() bool {
	for _, candidate := range validVehicleTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

func ParseVehicleType(value string) (VehicleType, error) {
	for _, candidate := range validVehicleTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid vehicle type %q", value)
}
