package geo

import (
	"math"

	pkgerrors "GuardTrack/pkg/errors"
)

// EarthRadiusMeters 取 WGS84 平均半径。
const EarthRadiusMeters = 6371000.0

// Location 是一个带精度的坐标点，数据库里按独立列存储，不允许裸 JSON。
type Location struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	AccuracyMeters float64 `json:"accuracy_meters"`
}

// Validate 做范围检查：纬度 [-90,90]，经度 [-180,180]，精度非负。
func (l Location) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return pkgerrors.InvalidLocation
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return pkgerrors.InvalidLocation
	}
	if l.AccuracyMeters < 0 {
		return pkgerrors.InvalidLocation
	}
	return nil
}

// Haversine 计算两点的大圆距离（米）。
func Haversine(a, b Location) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}
