package reports

import (
	"math"
	"sort"
)

type appRollup struct {
	totalSeconds int64
	users        map[string]struct{}
	devices      map[string]struct{}
}

type userRollup struct {
	totalSeconds int64
	launchCount  int
	apps         map[string]struct{}
	devices      map[string]struct{}
}

// Aggregate computes the fleet utilization report from loaded device
// snapshots. Archived devices are excluded unless opted in; each device's
// sessions are re-validated against that device's own inventory before they
// contribute. Applications with zero kept sessions in the window are omitted.
func Aggregate(rows []DeviceSnapshot, opts Options) *UtilizationReport {
	apps := make(map[string]*appRollup)
	users := make(map[string]*userRollup)

	var totalSeconds int64
	devicesWithUsage := make(map[string]struct{})
	contributing := make(map[string]struct{})

	for _, row := range rows {
		if row.Archived && !opts.IncludeArchived {
			continue
		}
		if !row.Document.Usage.IsCaptureEnabled {
			// Disabled capture contributes to neither numerator nor
			// denominator.
			continue
		}
		devicesWithUsage[row.DeviceID] = struct{}{}

		installed := row.Document.InstalledNames()
		for _, s := range row.Document.Usage.ActiveSessions {
			if _, ok := installed[s.Name]; !ok {
				continue
			}
			if !opts.Cutoff.IsZero() && s.StartTime.Before(opts.Cutoff) {
				continue
			}

			contributing[row.DeviceID] = struct{}{}
			totalSeconds += s.DurationSeconds

			a := apps[s.Name]
			if a == nil {
				a = &appRollup{users: make(map[string]struct{}), devices: make(map[string]struct{})}
				apps[s.Name] = a
			}
			a.totalSeconds += s.DurationSeconds
			a.users[s.User] = struct{}{}
			a.devices[row.DeviceID] = struct{}{}

			u := users[s.User]
			if u == nil {
				u = &userRollup{apps: make(map[string]struct{}), devices: make(map[string]struct{})}
				users[s.User] = u
			}
			u.totalSeconds += s.DurationSeconds
			u.launchCount++
			u.apps[s.Name] = struct{}{}
			u.devices[row.DeviceID] = struct{}{}
		}
	}

	report := &UtilizationReport{
		Summary: Summary{
			TotalApplications:       len(apps),
			TotalDevices:            len(contributing),
			DevicesWithUsageEnabled: len(devicesWithUsage),
			TotalUsageHours:         roundHours(totalSeconds),
		},
		Applications: make([]ApplicationUsage, 0, len(apps)),
		TopUsers:     make([]UserUsage, 0, len(users)),
	}

	for name, a := range apps {
		deviceIDs := make([]string, 0, len(a.devices))
		for id := range a.devices {
			deviceIDs = append(deviceIDs, id)
		}
		sort.Strings(deviceIDs)

		report.Applications = append(report.Applications, ApplicationUsage{
			Name:         name,
			TotalSeconds: a.totalSeconds,
			UniqueUsers:  len(a.users),
			DeviceCount:  len(a.devices),
			DeviceIDs:    deviceIDs,
		})
	}
	sort.Slice(report.Applications, func(i, j int) bool {
		if report.Applications[i].TotalSeconds != report.Applications[j].TotalSeconds {
			return report.Applications[i].TotalSeconds > report.Applications[j].TotalSeconds
		}
		return report.Applications[i].Name < report.Applications[j].Name
	})

	for name, u := range users {
		report.TopUsers = append(report.TopUsers, UserUsage{
			Username:     name,
			TotalSeconds: u.totalSeconds,
			LaunchCount:  u.launchCount,
			AppsUsed:     len(u.apps),
			DevicesUsed:  len(u.devices),
		})
	}
	sort.Slice(report.TopUsers, func(i, j int) bool {
		if report.TopUsers[i].TotalSeconds != report.TopUsers[j].TotalSeconds {
			return report.TopUsers[i].TotalSeconds > report.TopUsers[j].TotalSeconds
		}
		return report.TopUsers[i].Username < report.TopUsers[j].Username
	})

	return report
}

func roundHours(seconds int64) float64 {
	return math.Round(float64(seconds)/3600*10) / 10
}
