/*
 * Copyright 2021-2022 by Nedim Sabic Sabic
 * https://www.fibratus.io
 * All Rights Reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package driver

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rabbitstack/winspect/pkg/errs"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"
)

const (
	// stopRetries is the number of attempts to stop a driver whose
	// dependent services are still winding down.
	stopRetries = 5
	// stopInterval is the pause between consecutive stop attempts.
	stopInterval = time.Second
)

// Driver represents a kernel driver registered in the service control
// manager, possibly exposing a device object to user mode clients.
type Driver struct {
	// Name is the service name under which the driver is registered.
	Name string
	// Path is the full path of the driver image on disk.
	Path string
	// Device is the handle to the driver device object. It is only
	// valid after a successful Open call.
	Device windows.Handle
}

// New returns a driver descriptor for the given service name
// and image path.
func New(name, path string) *Driver {
	return &Driver{Name: name, Path: path, Device: windows.InvalidHandle}
}

// Load registers the driver in the service control manager and sends it
// the start control. Both the already-registered and the already-running
// conditions are tolerated, so the call is idempotent.
func (d *Driver) Load() error {
	if d.Name == "" || d.Path == "" {
		return errors.Wrap(errs.ErrInvalidArg, "driver name and path are required")
	}
	m, err := mgr.Connect()
	if err != nil {
		return errors.Wrap(err, "unable to connect to the service control manager")
	}
	defer func() {
		_ = m.Disconnect()
	}()

	s, err := m.OpenService(d.Name)
	if err != nil {
		s, err = m.CreateService(d.Name, d.Path, mgr.Config{
			ServiceType: windows.SERVICE_KERNEL_DRIVER,
			StartType:   mgr.StartManual,
			DisplayName: d.Name,
		})
		if err != nil {
			return errors.Wrapf(err, "unable to register the %s driver", d.Name)
		}
	}
	defer func() {
		_ = s.Close()
	}()

	log.Infof("starting %s driver from %s", d.Name, d.Path)
	if err := s.Start(); err != nil && err != windows.ERROR_SERVICE_ALREADY_RUNNING {
		return errors.Wrapf(err, "unable to start the %s driver", d.Name)
	}
	return nil
}

// Unload stops the driver and removes its registration from the service
// control manager. Stopping is retried for a while when dependent services
// are still running.
func (d *Driver) Unload() error {
	d.Close()
	m, err := mgr.Connect()
	if err != nil {
		return errors.Wrap(err, "unable to connect to the service control manager")
	}
	defer func() {
		_ = m.Disconnect()
	}()

	s, err := m.OpenService(d.Name)
	if err != nil {
		return errors.Wrapf(errs.ErrNotFound, "driver %s is not registered", d.Name)
	}
	defer func() {
		_ = s.Close()
	}()

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(stopInterval), stopRetries)
	err = backoff.Retry(func() error {
		status, err := s.Control(svc.Stop)
		switch {
		case err == nil:
			if status.State != svc.Stopped && status.State != svc.StopPending {
				return errors.Errorf("driver in unexpected state %d after stop", status.State)
			}
			return nil
		case err == windows.ERROR_SERVICE_NOT_ACTIVE:
			return nil
		case err == windows.ERROR_DEPENDENT_SERVICES_RUNNING:
			log.Warnf("%s driver has running dependents. Retrying stop...", d.Name)
			return err
		default:
			return backoff.Permanent(err)
		}
	}, b)
	if err != nil {
		return errors.Wrapf(err, "unable to stop the %s driver", d.Name)
	}

	if err := s.Delete(); err != nil {
		return errors.Wrapf(err, "unable to remove the %s driver registration", d.Name)
	}
	return nil
}

// Open establishes a handle to the driver device object. The device name
// defaults to the service name.
func (d *Driver) Open() error {
	u16, err := windows.UTF16PtrFromString(`\\.\` + d.Name)
	if err != nil {
		return err
	}
	dev, err := windows.CreateFile(
		u16,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		0,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_ATTRIBUTE_NORMAL,
		0,
	)
	if err != nil {
		return errors.Wrapf(err, "unable to open the %s device", d.Name)
	}
	d.Device = dev
	return nil
}

// Close releases the device handle if one was opened.
func (d *Driver) Close() {
	if d.Device != windows.InvalidHandle {
		_ = windows.CloseHandle(d.Device)
		d.Device = windows.InvalidHandle
	}
}

// IoControl sends the control code along with the input buffer to the
// driver device and returns the number of bytes written to the output
// buffer.
func (d *Driver) IoControl(code uint32, in, out []byte) (uint32, error) {
	if d.Device == windows.InvalidHandle {
		return 0, errors.Wrap(errs.ErrInvalidArg, "device is not open")
	}
	var inPtr, outPtr *byte
	if len(in) > 0 {
		inPtr = &in[0]
	}
	if len(out) > 0 {
		outPtr = &out[0]
	}
	var ret uint32
	err := windows.DeviceIoControl(d.Device, code, inPtr, uint32(len(in)), outPtr, uint32(len(out)), &ret, nil)
	if err != nil {
		return 0, errors.Wrapf(err, "device control %#x failed", code)
	}
	return ret, nil
}
